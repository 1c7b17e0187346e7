package aggregates

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	client *db.Client
	m      *Maintainer
	userID uuid.UUID
	repoID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	m, err := NewMaintainer(MaintainerParams{DB: conn, Tx: client, Logger: logger.Nop()})
	require.NoError(t, err)

	user := &models.User{ClerkUserID: "user_" + uuid.NewString(), Email: "dev@example.com"}
	require.NoError(t, conn.Create(user).Error)
	repo := &models.Repository{UserID: user.ID, GitHubRepoID: 1, InstallationID: 9, Owner: "acme", Name: "api", FullName: "acme/api"}
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(repo).Error; err != nil {
			return err
		}
		return m.Insert(context.Background(), tx, RepositoryEntry(repo))
	}))

	return &fixture{conn: conn, client: client, m: m, userID: user.ID, repoID: repo.ID}
}

func (f *fixture) insertCommit(t *testing.T, sha string, summary *string) *models.Commit {
	t.Helper()
	commit := &models.Commit{
		UserID:       f.userID,
		RepositoryID: f.repoID,
		SHA:          sha,
		Message:      "change " + sha,
		CommittedAt:  time.Now().UTC(),
		Summary:      summary,
	}
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(commit).Error; err != nil {
			return err
		}
		return f.m.Insert(context.Background(), tx, CommitEntry(commit))
	}))
	return commit
}

func (f *fixture) baseCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Commit{}).Where("user_id = ?", f.userID).Count(&count).Error)
	return count
}

func strPtr(s string) *string { return &s }

func TestInsertIsIdempotentPerRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	commit := f.insertCommit(t, "a1", strPtr("did a thing"))

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.m.Insert(ctx, tx, CommitEntry(commit))
	}))

	totals, err := f.m.Totals(ctx, enums.AggregateCommits, f.userID)
	require.NoError(t, err)
	assert.Equal(t, Totals{Count: 1, Sum: 1}, totals)
}

func TestDeleteMissingEntryIsTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.m.Delete(ctx, tx, enums.AggregateCommits, uuid.New())
	})
	require.NoError(t, err)

	count, err := f.m.Count(ctx, enums.AggregateCommits, f.userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMutationsRequireTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Error(t, f.m.Insert(ctx, nil, Entry{Aggregate: enums.AggregateCommits, Namespace: f.userID, RecordID: uuid.New()}))
	assert.Error(t, f.m.Delete(ctx, nil, enums.AggregateCommits, uuid.New()))
}

func TestReplaceMovesSumWhenSummaryAppears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	commit := f.insertCommit(t, "b2", nil)

	sum, err := f.m.Sum(ctx, enums.AggregateCommits, f.userID)
	require.NoError(t, err)
	assert.Zero(t, sum)

	old := CommitEntry(commit)
	commit.Summary = strPtr("now summarized")
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.m.Replace(ctx, tx, old, CommitEntry(commit))
	}))

	totals, err := f.m.Totals(ctx, enums.AggregateCommits, f.userID)
	require.NoError(t, err)
	assert.Equal(t, Totals{Count: 1, Sum: 1}, totals)
}

// Random insert/delete/replace sequences mirrored onto the aggregate must keep
// the aggregate count equal to the base count after every step.
func TestAggregateTracksBaseTableThroughRandomOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	var live []*models.Commit

	for step := 0; step < 60; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			var summary *string
			if rng.Intn(2) == 0 {
				summary = strPtr("summary")
			}
			live = append(live, f.insertCommit(t, fmt.Sprintf("sha-%d", step), summary))
		case op == 1:
			idx := rng.Intn(len(live))
			victim := live[idx]
			require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
				if err := tx.Delete(&models.Commit{}, "id = ?", victim.ID).Error; err != nil {
					return err
				}
				return f.m.Delete(ctx, tx, enums.AggregateCommits, victim.ID)
			}))
			live = append(live[:idx], live[idx+1:]...)
		default:
			target := live[rng.Intn(len(live))]
			old := CommitEntry(target)
			target.Summary = strPtr(fmt.Sprintf("regenerated %d", step))
			require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
				if err := tx.Model(&models.Commit{}).Where("id = ?", target.ID).Update("summary", target.Summary).Error; err != nil {
					return err
				}
				return f.m.Replace(ctx, tx, old, CommitEntry(target))
			}))
		}

		count, err := f.m.Count(ctx, enums.AggregateCommits, f.userID)
		require.NoError(t, err)
		require.Equal(t, f.baseCount(t), count, "step %d", step)
	}

	report, err := f.m.Audit(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, report.Drifted(), "%+v", report.Items)
}

func TestBackfillRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insertCommit(t, "c1", strPtr("one"))
	f.insertCommit(t, "c2", nil)

	// a base row written without its aggregate entry
	orphan := &models.Commit{UserID: f.userID, RepositoryID: f.repoID, SHA: "c3", Message: "m", CommittedAt: time.Now().UTC(), Summary: strPtr("x")}
	require.NoError(t, f.conn.Create(orphan).Error)

	report, err := f.m.Audit(ctx, f.userID)
	require.NoError(t, err)
	require.True(t, report.Drifted())

	rebuilt, err := f.m.Backfill(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, Totals{Count: 3, Sum: 2}, rebuilt[enums.AggregateCommits])
	assert.Equal(t, Totals{Count: 1}, rebuilt[enums.AggregateRepositories])

	again, err := f.m.Backfill(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, rebuilt, again)

	report, err = f.m.Audit(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, report.Drifted(), "%+v", report.Items)
}

func TestBackfillLeavesOtherNamespacesAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insertCommit(t, "d1", nil)

	other := uuid.New()
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		return f.m.Insert(ctx, tx, Entry{Aggregate: enums.AggregateBlogs, Namespace: other, RecordID: uuid.New(), OrderKey: time.Now().UTC()})
	}))

	_, err := f.m.Backfill(ctx, f.userID)
	require.NoError(t, err)

	count, err := f.m.Count(ctx, enums.AggregateBlogs, other)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCountBetweenUsesOrderKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		for i := 0; i < 5; i++ {
			entry := Entry{Aggregate: enums.AggregateBlogs, Namespace: f.userID, RecordID: uuid.New(), OrderKey: base.Add(time.Duration(i) * 24 * time.Hour)}
			if err := f.m.Insert(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	}))

	count, err := f.m.CountBetween(ctx, enums.AggregateBlogs, f.userID, base.Add(24*time.Hour), base.Add(72*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	snapshot, err := f.m.Snapshot(ctx, f.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, snapshot[enums.AggregateBlogs].Count)
	assert.Zero(t, snapshot[enums.AggregateCrons].Count)
}

func TestNamespacesPagesUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.conn.Create(&models.User{ClerkUserID: "user_two", Email: "two@example.com"}).Error)

	first, err := f.m.Namespaces(ctx, uuid.Nil, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	rest, err := f.m.Namespaces(ctx, first[0], 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, first[0], rest[0])
}
