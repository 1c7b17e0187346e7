package enums

import "fmt"

// JobStatus tracks a durable scheduled job through the dispatcher.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

var validJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusSucceeded,
	JobStatusFailed,
	JobStatusCanceled,
}

// String implements fmt.Stringer.
func (v JobStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical scheduled_job_status enum.
func (v JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseJobStatus converts raw input into JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}

// IsLive reports whether a job in this state may still fire.
func (v JobStatus) IsLive() bool {
	return v == JobStatusPending || v == JobStatusRunning
}
