package sinks

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/progress"
	"github.com/JakeFAU/geo-ingest/internal/storage/postgis"
)

// RunRecorder persists job run rows.
type RunRecorder interface {
	StartRun(ctx context.Context, run postgis.RunStart) error
	CompleteRun(ctx context.Context, run postgis.RunEnd) error
}

// RunSink records the start and end of each job in a run table.
type RunSink struct {
	runs   RunRecorder
	logger *zap.Logger
}

// NewRunSink builds a RunSink over runs.
func NewRunSink(runs RunRecorder, logger *zap.Logger) *RunSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunSink{runs: runs, logger: logger}
}

// Consume writes JOB_START, JOB_DONE and JOB_ERROR events. Events without a
// job id cannot be keyed and are skipped.
func (s *RunSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.JobID == "" {
			continue
		}
		var err error
		switch evt.Stage {
		case progress.StageJobStart:
			err = s.runs.StartRun(ctx, postgis.RunStart{
				JobID:     evt.JobID,
				DataID:    evt.DataID,
				DataType:  evt.DataType,
				Attempt:   evt.Attempt,
				StartedAt: evt.TS,
			})
		case progress.StageJobDone:
			err = s.runs.CompleteRun(ctx, postgis.RunEnd{
				JobID:      evt.JobID,
				DataID:     evt.DataID,
				FinishedAt: evt.TS,
				Status:     postgis.RunSuccess,
			})
		case progress.StageJobError:
			err = s.runs.CompleteRun(ctx, postgis.RunEnd{
				JobID:      evt.JobID,
				DataID:     evt.DataID,
				FinishedAt: evt.TS,
				Status:     postgis.RunError,
				ErrorKind:  evt.ErrorKind,
				Message:    evt.Note,
			})
		}
		if err != nil {
			s.logger.Warn("job run write failed",
				zap.String("job_id", evt.JobID),
				zap.String("stage", string(evt.Stage)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the pool is owned by the feature store.
func (s *RunSink) Close(context.Context) error {
	return nil
}
