package crons

import (
	"fmt"
	"strconv"
	"strings"
)

type fieldBounds struct {
	name     string
	min, max int
}

var standardFields = [5]fieldBounds{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day of month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day of week", min: 0, max: 6},
}

// ValidateExpression checks a five-field cron expression. Each field is a
// comma-separated list of `*`, N or N-M, optionally followed by /step.
func ValidateExpression(expression string) error {
	fields := strings.Fields(expression)
	if len(fields) != len(standardFields) {
		return fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	for i, field := range fields {
		if err := validateField(field, standardFields[i]); err != nil {
			return fmt.Errorf("%s field %q: %w", standardFields[i].name, field, err)
		}
	}
	return nil
}

func validateField(field string, bounds fieldBounds) error {
	for _, item := range strings.Split(field, ",") {
		if item == "" {
			return fmt.Errorf("empty list item")
		}
		base, step, hasStep := strings.Cut(item, "/")
		if hasStep {
			n, err := parseInt(step)
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			if n <= 0 {
				return fmt.Errorf("step must be positive")
			}
		}
		if base == "*" {
			continue
		}
		low, high, isRange := strings.Cut(base, "-")
		lo, err := parseInt(low)
		if err != nil {
			return err
		}
		hi := lo
		if isRange {
			if hi, err = parseInt(high); err != nil {
				return err
			}
			if hi < lo {
				return fmt.Errorf("range %d-%d is inverted", lo, hi)
			}
		}
		if lo < bounds.min || hi > bounds.max {
			return fmt.Errorf("value out of range %d-%d", bounds.min, bounds.max)
		}
	}
	return nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}
