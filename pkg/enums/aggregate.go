package enums

import "fmt"

// Aggregate names a per-user derived counter maintained alongside a base table.
type Aggregate string

const (
	AggregateCommits      Aggregate = "commits"
	AggregatePullRequests Aggregate = "pull_requests"
	AggregateRepositories Aggregate = "repositories"
	AggregateBlogs        Aggregate = "blogs"
	AggregateCrons        Aggregate = "crons"
)

var validAggregates = []Aggregate{
	AggregateCommits,
	AggregatePullRequests,
	AggregateRepositories,
	AggregateBlogs,
	AggregateCrons,
}

// String implements fmt.Stringer.
func (v Aggregate) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical aggregate_name enum.
func (v Aggregate) IsValid() bool {
	for _, candidate := range validAggregates {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseAggregate converts raw input into Aggregate.
func ParseAggregate(value string) (Aggregate, error) {
	for _, candidate := range validAggregates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate %q", value)
}
