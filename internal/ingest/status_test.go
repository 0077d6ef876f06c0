package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusUpdateWireFormat(t *testing.T) {
	t.Parallel()

	running, err := json.Marshal(RunningUpdate("j1"))
	require.NoError(t, err)
	require.JSONEq(t, `{"jobId":"j1","status":"Running","progress":{"percentComplete":0}}`, string(running))

	success, err := json.Marshal(SuccessUpdate("j1", "d1"))
	require.NoError(t, err)
	require.JSONEq(t, `{"jobId":"j1","status":"Success","progress":{"percentComplete":100},
		"result":{"type":"data","dataId":"d1"}}`, string(success))

	failed, err := json.Marshal(ErrorUpdate("j1", Extraction("read geotiff", errors.New("bad magic"))))
	require.NoError(t, err)
	require.JSONEq(t, `{"jobId":"j1","status":"Error","result":{"type":"error",
		"message":"Error while Ingesting the Data.","details":"read geotiff: bad magic","code":"EXTRACTION"}}`,
		string(failed))
}

func TestErrorUpdateClassifiesWrappedErrors(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("dispatch: %w", Unsupported("UnknownFormat"))
	update := ErrorUpdate("j", err)
	require.Equal(t, string(KindUnsupportedType), update.Result.Code)
	require.Equal(t, KindUnsupportedType.Message(), update.Result.Message)

	update = ErrorUpdate("j", errors.New("nil pointer"))
	require.Equal(t, string(KindUnclassified), update.Result.Code)
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	running := RunningUpdate("j")
	success := SuccessUpdate("j", "d")
	failed := ErrorUpdate("j", errors.New("x"))
	idFailed := ErrorUpdate("j", Unclassified("assign data id", errors.New("entropy exhausted")))
	halfway := StatusUpdate{JobID: "j", Status: StatusRunning, Progress: &JobProgress{PercentComplete: 50}}

	tests := []struct {
		name    string
		prev    *StatusUpdate
		next    StatusUpdate
		wantErr bool
	}{
		{name: "first running", prev: nil, next: running},
		{name: "first error", prev: nil, next: failed},
		{name: "id assignment error before running", prev: nil, next: idFailed},
		{name: "out of early error", prev: &idFailed, next: running, wantErr: true},
		{name: "success without running", prev: nil, next: success, wantErr: true},
		{name: "running to success", prev: &running, next: success},
		{name: "running to error", prev: &running, next: failed},
		{name: "running progress", prev: &running, next: halfway},
		{name: "progress regression", prev: &halfway, next: running, wantErr: true},
		{name: "error after regression allowed", prev: &halfway, next: failed},
		{name: "out of success", prev: &success, next: failed, wantErr: true},
		{name: "out of error", prev: &failed, next: running, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := CheckTransition(tc.prev, tc.next)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrIllegalTransition)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSpatialMetadataValidate(t *testing.T) {
	t.Parallel()

	ok := NewSpatialMetadata(Bounds{MinX: -10, MinY: -5, MaxX: 10, MaxY: 5}, 4326)
	require.NoError(t, ok.Validate())

	inverted := NewSpatialMetadata(Bounds{MinX: 10, MinY: 0, MaxX: -10, MaxY: 1}, 4326)
	require.Error(t, inverted.Validate())

	noEPSG := NewSpatialMetadata(Bounds{}, 0)
	require.Error(t, noEPSG.Validate())

	badProjected := NewSpatialMetadata(Bounds{MaxX: 1, MaxY: 1}, 3857)
	badProjected.Projected = NewSpatialMetadata(Bounds{MinY: 2, MaxY: 1}, 4326)
	require.ErrorContains(t, badProjected.Validate(), "projected")

	var missing *SpatialMetadata
	require.NoError(t, missing.Validate())
}

func TestValidateTableName(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateTableName("roads_d1"))
	require.NoError(t, ValidateTableName(strings.Repeat("a", MaxTableNameLen)))
	require.Error(t, ValidateTableName(""))
	require.Error(t, ValidateTableName("  "))
	require.ErrorContains(t, ValidateTableName(strings.Repeat("a", MaxTableNameLen+1)), "limit is 63")
}
