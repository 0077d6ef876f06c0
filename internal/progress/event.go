package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageInspectDone Stage = "INSPECT_DONE"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
)

// Event captures a single milestone of an ingest job.
type Event struct {
	// JobID is the job (or delivery) key; it may be empty only for
	// JOB_ERROR events raised by undecodable messages.
	JobID string
	// DataID identifies the resource once it is known.
	DataID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// DataType is the resource type tag.
	DataType string
	// ErrorKind classifies JOB_ERROR events.
	ErrorKind string
	// Attempt is the broker delivery attempt.
	Attempt int
	// Dur captures inspection latency or total job runtime.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone:
		if e.JobID == "" {
			return fmt.Errorf("%s requires job id", e.Stage)
		}
	case StageInspectDone:
		if e.JobID == "" {
			return errors.New("inspect done requires job id")
		}
		if e.DataType == "" {
			return errors.New("inspect done requires data type")
		}
	case StageJobError:
		if e.ErrorKind == "" {
			return errors.New("job error requires error kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
