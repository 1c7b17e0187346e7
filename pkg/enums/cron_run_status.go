package enums

import "fmt"

// CronRunStatus is the outcome recorded in a cron history entry.
type CronRunStatus string

const (
	CronRunStatusSuccess CronRunStatus = "success"
	CronRunStatusFailure CronRunStatus = "failure"
)

var validCronRunStatuses = []CronRunStatus{
	CronRunStatusSuccess,
	CronRunStatusFailure,
}

// String implements fmt.Stringer.
func (v CronRunStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical cron_run_status enum.
func (v CronRunStatus) IsValid() bool {
	for _, candidate := range validCronRunStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCronRunStatus converts raw input into CronRunStatus.
func ParseCronRunStatus(value string) (CronRunStatus, error) {
	for _, candidate := range validCronRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cron run status %q", value)
}
