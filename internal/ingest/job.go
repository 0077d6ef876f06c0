package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// JobTypeIngest is the only job type the worker processes.
const JobTypeIngest = "ingest"

// PersistMode selects whether a strategy also writes to the durable store.
type PersistMode int

// Persist modes.
const (
	MetadataOnly PersistMode = iota
	MetadataAndPersist
)

// PersistModeFromHost maps the wire "host" flag onto a PersistMode.
func PersistModeFromHost(host bool) PersistMode {
	if host {
		return MetadataAndPersist
	}
	return MetadataOnly
}

// Persist reports whether the mode requires durable persistence.
func (m PersistMode) Persist() bool {
	return m == MetadataAndPersist
}

func (m PersistMode) String() string {
	if m.Persist() {
		return "metadata_and_persist"
	}
	return "metadata_only"
}

// Job is an inbound ingest request.
type Job struct {
	JobID   string        `json:"jobId"`
	JobType string        `json:"jobType"`
	Data    *DataResource `json:"data"`
	Host    bool          `json:"host"`
}

// PersistMode returns the mode requested by the job.
func (j Job) PersistMode() PersistMode {
	return PersistModeFromHost(j.Host)
}

// DecodeJob parses a job message. Every failure is a malformed-message error.
func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, Malformed("decode job", err)
	}
	if job.JobType != JobTypeIngest {
		return Job{}, Malformed("decode job", fmt.Errorf("unsupported job type %q", job.JobType))
	}
	if job.Data == nil {
		return Job{}, Malformed("decode job", errors.New("data is required"))
	}
	if job.Data.DataType == nil {
		return Job{}, Malformed("decode job", ErrMissingDataType)
	}
	return job, nil
}

// RecoverJobID extracts "jobId" from a body that may not be valid JSON.
func RecoverJobID(body []byte) string {
	res := gjson.GetBytes(body, "jobId")
	if res.Type != gjson.String {
		return ""
	}
	return res.String()
}
