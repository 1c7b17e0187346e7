package pullrequests

import (
	"context"
	"testing"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*db.Client, *Service, *aggregates.Maintainer, uuid.UUID, uuid.UUID) {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: client, Logger: logger.Nop()})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Aggregates: aggs, Logger: logger.Nop()})
	require.NoError(t, err)

	user := &models.User{ClerkUserID: "user_pr", Email: "dev@example.com"}
	require.NoError(t, conn.Create(user).Error)
	repo := &models.Repository{UserID: user.ID, GitHubRepoID: 1, InstallationID: 7, Owner: "acme", Name: "api", FullName: "acme/api"}
	require.NoError(t, conn.Create(repo).Error)
	return client, svc, aggs, user.ID, repo.ID
}

func TestDiscoverUpsertsByNumber(t *testing.T) {
	client, svc, aggs, userID, repoID := setup(t)
	ctx := context.Background()

	discover := func(title, state string) (*models.PullRequest, bool) {
		var (
			pr      *models.PullRequest
			created bool
		)
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			pr, created, err = svc.Discover(ctx, tx, DiscoverInput{UserID: userID, RepositoryID: repoID, Number: 42, Title: title, State: state})
			return err
		}))
		return pr, created
	}

	first, created := discover("Add login", "open")
	assert.True(t, created)
	second, created := discover("Add login flow", "closed")
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.Get(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Add login flow", got.Title)
	assert.Equal(t, "closed", got.State)

	count, err := aggs.Count(ctx, enums.AggregatePullRequests, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestApplySummaryShiftsPrevious(t *testing.T) {
	client, svc, aggs, userID, repoID := setup(t)
	ctx := context.Background()

	var pr *models.PullRequest
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		pr, _, err = svc.Discover(ctx, tx, DiscoverInput{UserID: userID, RepositoryID: repoID, Number: 1, Title: "t"})
		return err
	}))

	for _, text := range []string{"v1", "v2"} {
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := svc.ApplySummary(ctx, tx, pr.ID, text, 3, 1)
			return err
		}))
	}

	got, err := svc.Get(ctx, userID, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", *got.Summary)
	assert.Equal(t, "v1", *got.PreviousSummary)

	sum, err := aggs.Sum(ctx, enums.AggregatePullRequests, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum)
}

func TestGetAndListScopeToOwner(t *testing.T) {
	client, svc, _, userID, repoID := setup(t)
	ctx := context.Background()
	var pr *models.PullRequest
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		pr, _, err = svc.Discover(ctx, tx, DiscoverInput{UserID: userID, RepositoryID: repoID, Number: 5, Title: "t"})
		return err
	}))

	_, err := svc.Get(ctx, uuid.New(), pr.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	page, err := svc.List(ctx, userID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.Cursor)

	page, err = svc.List(ctx, uuid.New(), pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
