package aggregates

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
)

// Entry is the aggregate-side mirror of one base-table row.
type Entry struct {
	Aggregate enums.Aggregate
	Namespace uuid.UUID
	RecordID  uuid.UUID
	OrderKey  time.Time
	SumValue  int64
}

// definition describes how an aggregate derives from its base table. The SQL
// fragments are static and shared by backfill and audit.
type definition struct {
	aggregate enums.Aggregate
	table     string
	sumExpr   string
}

var definitions = []definition{
	{aggregate: enums.AggregateCommits, table: "commits", sumExpr: "CASE WHEN summary IS NOT NULL AND summary <> '' THEN 1 ELSE 0 END"},
	{aggregate: enums.AggregatePullRequests, table: "pull_requests", sumExpr: "CASE WHEN summary IS NOT NULL AND summary <> '' THEN 1 ELSE 0 END"},
	{aggregate: enums.AggregateRepositories, table: "repositories", sumExpr: "0"},
	{aggregate: enums.AggregateBlogs, table: "blogs", sumExpr: "0"},
	{aggregate: enums.AggregateCrons, table: "crons", sumExpr: "CASE WHEN status = 'enabled' THEN 1 ELSE 0 END"},
}

func boolValue(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// CommitEntry sums commits that carry a summary.
func CommitEntry(c *models.Commit) Entry {
	return Entry{
		Aggregate: enums.AggregateCommits,
		Namespace: c.UserID,
		RecordID:  c.ID,
		OrderKey:  c.CreatedAt,
		SumValue:  boolValue(c.HasSummary()),
	}
}

func PullRequestEntry(p *models.PullRequest) Entry {
	return Entry{
		Aggregate: enums.AggregatePullRequests,
		Namespace: p.UserID,
		RecordID:  p.ID,
		OrderKey:  p.CreatedAt,
		SumValue:  boolValue(p.HasSummary()),
	}
}

func RepositoryEntry(r *models.Repository) Entry {
	return Entry{
		Aggregate: enums.AggregateRepositories,
		Namespace: r.UserID,
		RecordID:  r.ID,
		OrderKey:  r.CreatedAt,
	}
}

func BlogEntry(b *models.Blog) Entry {
	return Entry{
		Aggregate: enums.AggregateBlogs,
		Namespace: b.UserID,
		RecordID:  b.ID,
		OrderKey:  b.CreatedAt,
	}
}

// CronEntry sums enabled crons.
func CronEntry(c *models.Cron) Entry {
	return Entry{
		Aggregate: enums.AggregateCrons,
		Namespace: c.UserID,
		RecordID:  c.ID,
		OrderKey:  c.CreatedAt,
		SumValue:  boolValue(c.Status == enums.CronStatusEnabled),
	}
}
