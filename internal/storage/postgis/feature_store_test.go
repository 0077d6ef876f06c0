package postgis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

func TestReplaceFeaturesCommits(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	features := []ingest.Feature{
		{
			Geometry:   json.RawMessage(`{"type":"Point","coordinates":[1,2]}`),
			Properties: map[string]any{"name": "a"},
		},
		{Geometry: nil},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "public"\."d-1"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "public"\."d-1"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO "public"\."d-1"`).
		WithArgs(`{"type":"Point","coordinates":[1,2]}`, 4326, []byte(`{"name":"a"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "public"\."d-1"`).
		WithArgs(nil, 4326, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`CREATE INDEX ON "public"\."d-1" USING GIST`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceFeatures(context.Background(), "d-1", 4326, features))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFeaturesRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "geo")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "geo"\."roads_d1"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "geo"\."roads_d1"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO`).
		WillReturnError(errors.New("invalid GeoJSON representation"))
	mock.ExpectRollback()

	err = store.ReplaceFeatures(context.Background(), "roads_d1", 3857, []ingest.Feature{
		{Geometry: json.RawMessage(`{"type":"Nope"}`)},
	})
	require.ErrorContains(t, err, "insert feature 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFeaturesBeginFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.ReplaceFeatures(context.Background(), "t", 4326, nil), "begin")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceFeaturesValidatesArguments(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.ReplaceFeatures(context.Background(), " ", 4326, nil))
	require.Error(t, store.ReplaceFeatures(context.Background(), "t", 0, nil))
	require.Error(t, store.ReplaceFeatures(context.Background(), strings.Repeat("t", ingest.MaxTableNameLen+1), 4326, nil))
	require.NoError(t, mock.ExpectationsWereMet())

	var nilStore *FeatureStore
	require.Error(t, nilStore.ReplaceFeatures(context.Background(), "t", 4326, nil))
	nilStore.Close()
}

func TestNewWithPoolValidatesSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "")
	require.Error(t, err)
	_, err = NewWithPool(mock, "bad;schema")
	require.ErrorContains(t, err, "invalid schema")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "dsn is required")
}
