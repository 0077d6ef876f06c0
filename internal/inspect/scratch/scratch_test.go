package scratch

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestDirLifecycle(t *testing.T) {
	t.Parallel()

	dir, err := New(t.TempDir(), "tmp/../geojson")
	require.NoError(t, err)
	require.NotContains(t, filepath.Base(dir.Path()), "/")

	path, err := dir.WriteFile("../escape.json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, dir.Path(), filepath.Dir(path))

	require.NoError(t, dir.Close())
	_, err = os.Stat(dir.Path())
	require.True(t, os.IsNotExist(err))
	require.NoError(t, dir.Close())
}

func TestUnzip(t *testing.T) {
	t.Parallel()

	dir, err := New(t.TempDir(), "shp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	archive := filepath.Join(t.TempDir(), "layer.zip")
	writeZip(t, archive, map[string]string{
		"roads/roads.shp": "shp",
		"roads/roads.prj": "prj",
	})

	files, err := dir.Unzip(archive, "extract", 0)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		require.True(t, strings.HasPrefix(f, filepath.Join(dir.Path(), "extract")))
	}
}

func TestUnzipRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir, err := New(t.TempDir(), "shp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	archive := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archive, map[string]string{"../../evil.shp": "x"})

	_, err = dir.Unzip(archive, "extract", 0)
	require.ErrorContains(t, err, "escapes")
}

func TestUnzipLimit(t *testing.T) {
	t.Parallel()

	dir, err := New(t.TempDir(), "shp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	archive := filepath.Join(t.TempDir(), "big.zip")
	writeZip(t, archive, map[string]string{"big.shp": strings.Repeat("x", 64)})

	_, err = dir.Unzip(archive, "extract", 10)
	require.ErrorIs(t, err, ErrArchiveTooLarge)
}
