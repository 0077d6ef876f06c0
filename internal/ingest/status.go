package ingest

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state reported for a job.
type Status string

// Reported job statuses.
const (
	StatusRunning Status = "Running"
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Terminal reports whether no further transition may follow s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Result payload types.
const (
	ResultTypeData  = "data"
	ResultTypeError = "error"
)

// JobProgress is the completion percentage of a job.
type JobProgress struct {
	PercentComplete int `json:"percentComplete"`
}

// Result is the terminal payload of a job.
type Result struct {
	Type    string `json:"type"`
	DataID  string `json:"dataId,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StatusUpdate is published to the status channel, keyed by JobID.
type StatusUpdate struct {
	JobID    string       `json:"jobId"`
	Status   Status       `json:"status"`
	Progress *JobProgress `json:"progress,omitempty"`
	Result   *Result      `json:"result,omitempty"`
}

// RunningUpdate announces that work on the job has started.
func RunningUpdate(jobID string) StatusUpdate {
	return StatusUpdate{
		JobID:    jobID,
		Status:   StatusRunning,
		Progress: &JobProgress{PercentComplete: 0},
	}
}

// SuccessUpdate reports a completed job and the resulting data id.
func SuccessUpdate(jobID, dataID string) StatusUpdate {
	return StatusUpdate{
		JobID:    jobID,
		Status:   StatusSuccess,
		Progress: &JobProgress{PercentComplete: 100},
		Result:   &Result{Type: ResultTypeData, DataID: dataID},
	}
}

// ErrorUpdate reports a failed job, classifying cause.
func ErrorUpdate(jobID string, cause error) StatusUpdate {
	kind := KindOf(cause)
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return StatusUpdate{
		JobID:  jobID,
		Status: StatusError,
		Result: &Result{
			Type:    ResultTypeError,
			Message: kind.Message(),
			Details: details,
			Code:    string(kind),
		},
	}
}

// ErrIllegalTransition is returned when an update may not follow the previous one.
var ErrIllegalTransition = errors.New("illegal status transition")

// CheckTransition validates next against the last update recorded for the
// same job. prev is nil when nothing has been recorded yet. With no previous
// update, Running or Error is accepted: any failure before Running, such as
// a payload that does not decode or a data id that cannot be assigned,
// reports Error directly.
func CheckTransition(prev *StatusUpdate, next StatusUpdate) error {
	if prev == nil {
		if next.Status == StatusSuccess {
			return fmt.Errorf("%w: %s before %s", ErrIllegalTransition, next.Status, StatusRunning)
		}
		return nil
	}
	if prev.Status.Terminal() {
		return fmt.Errorf("%w: %s after terminal %s", ErrIllegalTransition, next.Status, prev.Status)
	}
	if percent(next) < percent(*prev) && next.Status != StatusError {
		return fmt.Errorf("%w: progress %d below %d", ErrIllegalTransition, percent(next), percent(*prev))
	}
	return nil
}

func percent(u StatusUpdate) int {
	if u.Progress == nil {
		return 0
	}
	return u.Progress.PercentComplete
}
