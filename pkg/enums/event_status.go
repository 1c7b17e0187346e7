package enums

import "fmt"

// EventStatus is the processing state of a recorded webhook event.
type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

var validEventStatuses = []EventStatus{
	EventStatusPending,
	EventStatusSuccess,
	EventStatusFailed,
}

// String implements fmt.Stringer.
func (v EventStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical webhook_event_status enum.
func (v EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEventStatus converts raw input into EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}

// IsTerminal reports whether processing has finished for the event.
func (v EventStatus) IsTerminal() bool {
	return v == EventStatusSuccess || v == EventStatusFailed
}
