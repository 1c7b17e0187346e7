package enums

import "fmt"

// CronStatus is the user-controlled state of a cron record.
type CronStatus string

const (
	CronStatusEnabled  CronStatus = "enabled"
	CronStatusDisabled CronStatus = "disabled"
)

var validCronStatuses = []CronStatus{
	CronStatusEnabled,
	CronStatusDisabled,
}

// String implements fmt.Stringer.
func (v CronStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical cron_status enum.
func (v CronStatus) IsValid() bool {
	for _, candidate := range validCronStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCronStatus converts raw input into CronStatus.
func ParseCronStatus(value string) (CronStatus, error) {
	for _, candidate := range validCronStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cron status %q", value)
}
