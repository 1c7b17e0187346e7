package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a slice of ids onto a Postgres uuid[] column, e.g. a cron's
// repository scope or the commits a blog was written from. Array literal
// parsing and quoting are delegated to lib/pq, which also lets the value
// round-trip through a sqlite TEXT column in tests.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	if src == nil {
		*a = UUIDArray{}
		return nil
	}
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}
	out := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("uuid array: element %q: %w", s, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

// Value never yields SQL NULL; an empty scope is stored as '{}'.
func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

// Normalize drops nil and duplicate ids, keeping first-seen order.
func (a UUIDArray) Normalize() UUIDArray {
	out := make(UUIDArray, 0, len(a))
	for _, id := range a {
		if id != uuid.Nil && !out.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
