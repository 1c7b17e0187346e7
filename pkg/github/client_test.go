package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gh "github.com/google/go-github/v72/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/pkg/config"
)

type fakeGitHub struct {
	t           *testing.T
	tokenCalls  int32
	expiresAt   time.Time
	commitPages map[int][]map[string]any
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/app/installations/7/access_tokens":
		atomic.AddInt32(&f.tokenCalls, 1)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "ghs_installation", "expires_at": f.expiresAt})
	case !strings.HasSuffix(r.Header.Get("Authorization"), " ghs_installation"):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	case r.URL.Path == "/repos/acme/api/commits/abc123":
		assert.Equal(f.t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		assert.Equal(f.t, userAgent, r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha":    "abc123",
			"commit": map[string]any{"message": "fix login"},
			"stats":  map[string]any{"additions": 12, "deletions": 3},
			"files": []map[string]any{
				{"filename": "auth/login.go", "status": "modified", "additions": 10, "deletions": 3, "patch": "@@ -1 +1 @@"},
				{"filename": "go.sum", "status": "modified", "additions": 2, "deletions": 0},
			},
		})
	case r.URL.Path == "/repos/acme/api/pulls/3/files":
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"filename": "a.go", "additions": 4, "deletions": 1},
			{"filename": "b.go", "additions": 6, "deletions": 2},
		})
	case r.URL.Path == "/repos/acme/api/commits":
		assert.NotEmpty(f.t, r.URL.Query().Get("since"))
		page := 1
		_, _ = fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		if _, ok := f.commitPages[page+1]; ok {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=%d>; rel="next"`, r.Host, r.URL.Path, page+1))
		}
		_ = json.NewEncoder(w).Encode(f.commitPages[page])
	case r.URL.Path == "/installation/repositories":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_count": 1,
			"repositories": []map[string]any{
				{"id": 99, "name": "api", "full_name": "acme/api", "private": true, "default_branch": "main", "owner": map[string]any{"login": "acme"}},
			},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}
}

func newTestClient(t *testing.T, fake *fakeGitHub) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	client, err := NewClient(config.GitHubConfig{AppID: 1, PrivateKey: string(keyPEM), APIURL: srv.URL}, WithTransport(srv.Client().Transport))
	require.NoError(t, err)
	return client
}

func TestCommitDiff(t *testing.T) {
	fake := &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour)}
	client := newTestClient(t, fake)

	diff, err := client.CommitDiff(context.Background(), 7, "acme", "api", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "fix login", diff.Message)
	assert.Equal(t, 12, diff.Additions)
	assert.Equal(t, 3, diff.Deletions)
	require.Len(t, diff.Files, 2)
	assert.Equal(t, "auth/login.go", diff.Files[0].Filename)
	assert.Equal(t, "@@ -1 +1 @@", diff.Files[0].Patch)
}

func TestInstallationTokenIsCached(t *testing.T) {
	fake := &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour)}
	client := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.CommitDiff(ctx, 7, "acme", "api", "abc123")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.tokenCalls))

	client.ForgetInstallation(7)
	_, err := client.CommitDiff(ctx, 7, "acme", "api", "abc123")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.tokenCalls))
}

func TestExpiringTokenIsRefreshed(t *testing.T) {
	fake := &fakeGitHub{t: t, expiresAt: time.Now().Add(30 * time.Second)}
	client := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.CommitDiff(ctx, 7, "acme", "api", "abc123")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.tokenCalls))
}

func TestPullRequestDiffSumsFiles(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour)})

	diff, err := client.PullRequestDiff(context.Background(), 7, "acme", "api", 3)
	require.NoError(t, err)
	assert.Len(t, diff.Files, 2)
	assert.Equal(t, 10, diff.Additions)
	assert.Equal(t, 3, diff.Deletions)
}

func TestListCommitsSinceReturnsOldestFirst(t *testing.T) {
	fake := &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour), commitPages: map[int][]map[string]any{
		1: {
			{"sha": "newest", "commit": map[string]any{"message": "third", "author": map[string]any{"name": "Ada", "email": "ada@acme.dev", "date": "2026-03-03T10:00:00Z"}}},
			{"sha": "new", "commit": map[string]any{"message": "second", "author": map[string]any{"name": "Ada", "date": "2026-03-02T10:00:00+02:00"}}},
		},
		2: {
			{"sha": "old", "html_url": "https://github.com/acme/api/commit/old", "commit": map[string]any{"message": "first", "author": map[string]any{"name": "Ada", "date": "2026-03-01T10:00:00Z"}}},
		},
	}}
	client := newTestClient(t, fake)

	refs, err := client.ListCommitsSince(context.Background(), 7, "acme", "api", time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, refs, 3, "follows the next link")
	assert.Equal(t, "old", refs[0].SHA)
	assert.Equal(t, "https://github.com/acme/api/commit/old", refs[0].URL)
	assert.Equal(t, "new", refs[1].SHA)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), refs[1].CommittedAt)
	assert.Equal(t, "newest", refs[2].SHA)
	assert.Equal(t, "ada@acme.dev", refs[2].AuthorEmail)
}

func TestListInstallationRepositories(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour)})

	repos, err := client.ListInstallationRepositories(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, Repository{ID: 99, Owner: "acme", Name: "api", FullName: "acme/api", Private: true, DefaultBranch: "main"}, repos[0])
}

func TestErrorsAreClassified(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{t: t, expiresAt: time.Now().Add(time.Hour)})

	_, err := client.CommitDiff(context.Background(), 7, "acme", "api", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAuth(err))

	_, err = client.CommitDiff(context.Background(), 8, "acme", "api", "abc123")
	require.Error(t, err, "installation token is refused")
	assert.False(t, IsNotFound(err))
	assert.True(t, IsAuth(err))

	_, err = client.CommitDiff(context.Background(), 0, "acme", "api", "abc123")
	assert.Error(t, err)
}

func TestRateLimitIsClassified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/repos/acme/api/commits/abc", nil)
	err := fmt.Errorf("fetch commit abc: %w", &gh.RateLimitError{
		Response: &http.Response{StatusCode: http.StatusForbidden, Request: req},
		Message:  "API rate limit exceeded",
	})
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsNotFound(err))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.GitHubConfig{AppID: 1})
	assert.Error(t, err)
}
