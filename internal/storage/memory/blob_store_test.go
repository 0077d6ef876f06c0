package memory

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore(ingest.LocationGCS, "hosted")
	loc, err := store.PutObject(context.Background(), "d1/d1.tif", "image/tiff", bytes.NewReader([]byte("tiff")))
	require.NoError(t, err)
	require.Equal(t, ingest.Location{Type: ingest.LocationGCS, BucketName: "hosted", FileName: "d1/d1.tif"}, loc)

	rc, err := store.GetObject(context.Background(), loc.BucketName, loc.Key())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "tiff", string(got))
}

func TestBlobStoreSeedCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore("", "")
	payload := []byte("content")
	store.Seed("", "shared/page.json", payload)
	payload[0] = 'C'

	rc, err := store.GetObject(context.Background(), "", "shared/page.json")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "content", string(got))
	require.Equal(t, 1, store.Len())

	loc, err := store.PutObject(context.Background(), "out.bin", "", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, ingest.LocationFolderShared, loc.Type)
	require.Equal(t, "out.bin", loc.FilePath)
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore(ingest.LocationS3, "b")
	_, err := store.GetObject(context.Background(), "b", "nope")
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
}
