package installations

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type memoryStates struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryStates) StoreInstallState(_ context.Context, state, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[state] = userID
	return nil
}

func (m *memoryStates) ConsumeInstallState(_ context.Context, state string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[state]
	if !ok {
		return "", redis.Nil
	}
	delete(m.values, state)
	return v, nil
}

type fakeLister struct {
	repos []github.Repository
	err   error
}

func (f fakeLister) ListInstallationRepositories(context.Context, int64) ([]github.Repository, error) {
	return f.repos, f.err
}

type fixture struct {
	svc    *Service
	users  *users.Service
	repos  *repositories.Service
	aggs   *aggregates.Maintainer
	lister *fakeLister
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	logg := logger.Nop()

	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: client, Logger: logg})
	require.NoError(t, err)
	userSvc, err := users.NewService(users.ServiceParams{Repo: users.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	repoSvc, err := repositories.NewService(repositories.ServiceParams{Repo: repositories.NewRepository(conn), Aggregates: aggs, Logger: logg})
	require.NoError(t, err)

	lister := &fakeLister{repos: []github.Repository{
		{ID: 1, Owner: "acme", Name: "api", FullName: "acme/api"},
		{ID: 2, Owner: "acme", Name: "web", FullName: "acme/web"},
	}}
	svc, err := NewService(ServiceParams{
		States:       &memoryStates{},
		Users:        userSvc,
		Repositories: repoSvc,
		GitHub:       lister,
		Tx:           client,
		InstallURL:   "https://github.com/apps/commitscribe/installations/new",
		Logger:       logg,
	})
	require.NoError(t, err)

	user, _, err := userSvc.EnsureFromClerk(context.Background(), users.ClerkUser{ClerkID: "user_install", Email: "dev@example.com"})
	require.NoError(t, err)
	return &fixture{svc: svc, users: userSvc, repos: repoSvc, aggs: aggs, lister: lister, userID: user.ID}
}

func (f *fixture) state(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	raw, err := f.svc.InstallURL(context.Background(), userID)
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestCompleteLinksAndSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Complete(ctx, f.userID, 42, f.state(t, f.userID))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)

	user, err := f.users.ByInstallation(ctx, nil, 42)
	require.NoError(t, err)
	assert.Equal(t, f.userID, user.ID)
	require.NotNil(t, user.GitHubLogin)
	assert.Equal(t, "acme", *user.GitHubLogin)

	count, err := f.aggs.Count(ctx, enums.AggregateRepositories, f.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestStateIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	state := f.state(t, f.userID)

	_, err := f.svc.Complete(ctx, f.userID, 42, state)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.userID, 42, state)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStateBoundToRequester(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Complete(context.Background(), uuid.New(), 42, f.state(t, f.userID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestGitHubFailureLinksNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lister.err = errors.New("github down")

	_, err := f.svc.Complete(ctx, f.userID, 42, f.state(t, f.userID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = f.users.ByInstallation(ctx, nil, 42)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
