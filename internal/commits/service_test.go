package commits

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	client *db.Client
	svc    *Service
	aggs   *aggregates.Maintainer
	userID uuid.UUID
	repoID uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: client, Logger: logger.Nop()})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Aggregates: aggs, Logger: logger.Nop()})
	require.NoError(t, err)

	user := &models.User{ClerkUserID: "user_" + uuid.NewString(), Email: "dev@example.com"}
	require.NoError(t, conn.Create(user).Error)
	repo := &models.Repository{UserID: user.ID, GitHubRepoID: 1, InstallationID: 7, Owner: "acme", Name: "api", FullName: "acme/api"}
	require.NoError(t, conn.Create(repo).Error)
	return &harness{client: client, svc: svc, aggs: aggs, userID: user.ID, repoID: repo.ID}
}

func (h *harness) discover(t *testing.T, sha string) (*models.Commit, bool) {
	t.Helper()
	var (
		commit  *models.Commit
		created bool
	)
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		commit, created, err = h.svc.Discover(context.Background(), tx, DiscoverInput{
			UserID:       h.userID,
			RepositoryID: h.repoID,
			SHA:          sha,
			Message:      "fix: " + sha,
			CommittedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		})
		return err
	}))
	return commit, created
}

func (h *harness) apply(t *testing.T, id uuid.UUID, summary string) *models.Commit {
	t.Helper()
	var out *models.Commit
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		out, err = h.svc.ApplySummary(context.Background(), tx, id, summary, 10, 2)
		return err
	}))
	return out
}

func TestDiscoverIsIdempotentPerSHA(t *testing.T) {
	h := newHarness(t)
	first, created := h.discover(t, "abc123")
	assert.True(t, created)

	again, created := h.discover(t, "abc123")
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	count, err := h.aggs.Count(context.Background(), enums.AggregateCommits, h.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDiscoverRejectsBlankSHA(t *testing.T) {
	h := newHarness(t)
	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, _, err := h.svc.Discover(context.Background(), tx, DiscoverInput{UserID: h.userID, RepositoryID: h.repoID, SHA: "  "})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplySummaryKeepsOneLevelOfHistory(t *testing.T) {
	h := newHarness(t)
	commit, _ := h.discover(t, "abc123")

	first := h.apply(t, commit.ID, "first")
	require.NotNil(t, first.Summary)
	assert.Equal(t, "first", *first.Summary)
	assert.Nil(t, first.PreviousSummary)

	second := h.apply(t, commit.ID, "second")
	assert.Equal(t, "second", *second.Summary)
	require.NotNil(t, second.PreviousSummary)
	assert.Equal(t, "first", *second.PreviousSummary)

	third := h.apply(t, commit.ID, "third")
	assert.Equal(t, "second", *third.PreviousSummary)
	assert.Equal(t, 10, third.Additions)

	totals, err := h.aggs.Totals(context.Background(), enums.AggregateCommits, h.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals.Count)
	assert.EqualValues(t, 1, totals.Sum)

	report, err := h.aggs.Audit(context.Background(), h.userID)
	require.NoError(t, err)
	assert.False(t, report.Drifted())
}

func TestGetHidesForeignCommits(t *testing.T) {
	h := newHarness(t)
	commit, _ := h.discover(t, "abc123")

	got, err := h.svc.Get(context.Background(), h.userID, commit.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.SHA)

	_, err = h.svc.Get(context.Background(), uuid.New(), commit.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListTrimsToLimit(t *testing.T) {
	h := newHarness(t)
	for _, sha := range []string{"a1", "b2", "c3"} {
		h.discover(t, sha)
	}

	page, err := h.svc.List(context.Background(), h.userID, ListParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.Cursor)

	_, err = h.svc.List(context.Background(), h.userID, ListParams{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSummarizedFiltersUnsummarizedAndForeign(t *testing.T) {
	h := newHarness(t)
	done, _ := h.discover(t, "done")
	pending, _ := h.discover(t, "pending")
	h.apply(t, done.ID, "summary")

	rows, err := h.svc.Summarized(context.Background(), h.userID, []uuid.UUID{done.ID, pending.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, done.ID, rows[0].ID)

	rows, err = h.svc.Summarized(context.Background(), uuid.New(), []uuid.UUID{done.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
