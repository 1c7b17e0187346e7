package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/api/middleware"
	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/blogs"
	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/internal/crons"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), userID, "user_test", false))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responses.ErrorBody {
	t.Helper()
	var envelope responses.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error
}

type stubRegenerator struct {
	commit      *models.Commit
	err         error
	instruction string
}

func (s *stubRegenerator) RegenerateCommit(_ context.Context, _, _ uuid.UUID, instruction string) (*models.Commit, error) {
	s.instruction = instruction
	return s.commit, s.err
}

func TestRegenerateCommitReturnsNewSummary(t *testing.T) {
	summary, previous := "new", "old"
	commitID := uuid.New()
	stub := &stubRegenerator{commit: &models.Commit{ID: commitID, SHA: "abc", Summary: &summary, PreviousSummary: &previous}}
	handler := RegenerateCommit(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"instruction":"  make it shorter "}`))
	req = authed(withParam(req, "commitID", commitID.String()), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "make it shorter", stub.instruction)

	var envelope struct {
		Data commits.CommitDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "new", *envelope.Data.Summary)
	assert.Equal(t, "old", *envelope.Data.PreviousSummary)
}

func TestRegenerateCommitHidesCollaboratorFailure(t *testing.T) {
	stub := &stubRegenerator{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("openai: 500"), "generate summary")}
	handler := RegenerateCommit(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"instruction":"again"}`))
	req = authed(withParam(req, "commitID", uuid.NewString()), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, pkgerrors.MessageRegenerationFailed, apiErr.Message)
	assert.NotContains(t, apiErr.Message, "openai")
}

func TestRegenerateCommitRequiresInstruction(t *testing.T) {
	stub := &stubRegenerator{}
	handler := RegenerateCommit(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	req = authed(withParam(req, "commitID", uuid.NewString()), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlersRequireUser(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"commits": ListCommits(&stubCommits{}, logger.Nop()),
		"crons":   ListCrons(&stubCrons{}, logger.Nop()),
		"stats":   Stats(&stubStats{}, nil, logger.Nop()),
	}
	for name, handler := range handlers {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

type stubCommits struct {
	params commits.ListParams
}

func (s *stubCommits) List(_ context.Context, _ uuid.UUID, params commits.ListParams) (*commits.ListResult, error) {
	s.params = params
	return &commits.ListResult{Items: []commits.CommitDTO{}}, nil
}

func (s *stubCommits) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Commit, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commit not found")
}

func TestListCommitsParsesFilters(t *testing.T) {
	stub := &stubCommits{}
	repoID := uuid.New()
	handler := ListCommits(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc&repository_id="+repoID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, stub.params.Limit)
	assert.Equal(t, "abc", stub.params.Cursor)
	require.NotNil(t, stub.params.RepositoryID)
	assert.Equal(t, repoID, *stub.params.RepositoryID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/?repository_id=nope", nil), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCommitNotFound(t *testing.T) {
	handler := GetCommit(&stubCommits{}, logger.Nop())
	req := authed(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "commitID", uuid.NewString()), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubCrons struct {
	created crons.CreateInput
	updated crons.UpdateInput
}

func (s *stubCrons) Create(_ context.Context, userID uuid.UUID, input crons.CreateInput) (*models.Cron, error) {
	s.created = input
	status := enums.CronStatusDisabled
	if input.Enabled {
		status = enums.CronStatusEnabled
	}
	return &models.Cron{ID: uuid.New(), UserID: userID, Name: input.Name, Schedule: input.Schedule, Status: status}, nil
}

func (s *stubCrons) Update(_ context.Context, userID, id uuid.UUID, input crons.UpdateInput) (*models.Cron, error) {
	s.updated = input
	return &models.Cron{ID: id, UserID: userID, Status: enums.CronStatusDisabled}, nil
}

func (s *stubCrons) SetStatus(_ context.Context, userID, id uuid.UUID, status enums.CronStatus) (*models.Cron, error) {
	return &models.Cron{ID: id, UserID: userID, Status: status}, nil
}

func (s *stubCrons) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *stubCrons) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Cron, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cron not found")
}

func (s *stubCrons) List(context.Context, uuid.UUID) ([]models.Cron, error) { return nil, nil }

func (s *stubCrons) History(context.Context, uuid.UUID, uuid.UUID, int) ([]models.CronHistory, error) {
	return []models.CronHistory{}, nil
}

func TestCreateCronDefaultsToEnabled(t *testing.T) {
	stub := &stubCrons{}
	handler := CreateCron(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"daily","schedule":"0 9 * * 1-5"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, stub.created.Enabled)
	assert.Empty(t, stub.created.RepositoryIDs)

	var envelope struct {
		Data crons.CronDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, enums.CronStatusEnabled, envelope.Data.Status)
	assert.NotNil(t, envelope.Data.RepositoryIDs)
}

func TestUpdateCronMapsStatus(t *testing.T) {
	stub := &stubCrons{}
	handler := UpdateCron(stub, logger.Nop())

	req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"status":"disabled","repository_ids":[]}`))
	req = authed(withParam(req, "cronID", uuid.NewString()), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.updated.Status)
	assert.Equal(t, enums.CronStatusDisabled, *stub.updated.Status)
	require.NotNil(t, stub.updated.RepositoryIDs)
	assert.Empty(t, *stub.updated.RepositoryIDs)
	assert.Nil(t, stub.updated.Schedule)

	req = httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"status":"paused"}`))
	req = authed(withParam(req, "cronID", uuid.NewString()), uuid.New())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubBlogs struct {
	input blogs.GenerateInput
}

func (s *stubBlogs) Generate(_ context.Context, userID uuid.UUID, input blogs.GenerateInput) (*models.Blog, error) {
	s.input = input
	return &models.Blog{ID: uuid.New(), UserID: userID, Title: input.Title, Content: "body"}, nil
}

func (s *stubBlogs) List(context.Context, uuid.UUID, int) ([]models.Blog, error) { return nil, nil }

func (s *stubBlogs) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Blog, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "blog not found")
}

func (s *stubBlogs) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func TestGenerateBlog(t *testing.T) {
	stub := &stubBlogs{}
	handler := GenerateBlog(stub, logger.Nop())
	commitID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"commit_ids":["`+commitID.String()+`"],"title":" Week 9 "}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(req, uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []uuid.UUID{commitID}, stub.input.CommitIDs)
	assert.Equal(t, "Week 9", stub.input.Title)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"commit_ids":[]}`)), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubStats struct{}

func (stubStats) Snapshot(context.Context, uuid.UUID) (map[enums.Aggregate]aggregates.Totals, error) {
	return map[enums.Aggregate]aggregates.Totals{
		enums.AggregateCommits: {Count: 4, Sum: 3},
		enums.AggregateBlogs:   {Count: 1},
	}, nil
}

func (stubStats) CountBetween(context.Context, enums.Aggregate, uuid.UUID, time.Time, time.Time) (int64, error) {
	return 2, nil
}

func TestStatsReportsTotals(t *testing.T) {
	handler := Stats(stubStats{}, func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }, logger.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data statsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.EqualValues(t, 2, envelope.Data.CommitsLastWeek)
	assert.InDelta(t, 75.0, envelope.Data.SummarizedPercent, 0.001)
	assert.EqualValues(t, 4, envelope.Data.Totals[enums.AggregateCommits].Count)
}

type stubInstallations struct {
	installationID int64
	state          string
}

func (s *stubInstallations) InstallURL(context.Context, uuid.UUID) (string, error) {
	return "https://github.com/apps/commitscribe/installations/new?state=s1", nil
}

func (s *stubInstallations) Complete(_ context.Context, _ uuid.UUID, installationID int64, state string) (repositories.SyncResult, error) {
	s.installationID, s.state = installationID, state
	return repositories.SyncResult{Added: 2}, nil
}

func TestGitHubInstallFlow(t *testing.T) {
	stub := &stubInstallations{}
	userID := uuid.New()

	rec := httptest.NewRecorder()
	GitHubInstallURL(stub, logger.Nop()).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/", nil), userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "installations/new?state=s1")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	GitHubCallback(stub, logger.Nop()).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/?installation_id=42&state=s1", nil), userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, stub.installationID)
	assert.Equal(t, "s1", stub.state)

	rec = httptest.NewRecorder()
	GitHubCallback(stub, logger.Nop()).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/?installation_id=abc&state=s1", nil), userID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": ok, "redis": ok}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": ok, "redis": down}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-CommitScribe-Env"))
}
