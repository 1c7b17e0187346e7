package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v72/github"

	"github.com/angelmondragon/commitscribe-backend/pkg/auth"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
)

const (
	defaultAPIURL  = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	userAgent      = "CommitScribe/1.0"
	perPage        = 100
	maxPages       = 30
)

// Client talks to the GitHub REST API as a GitHub App. Each installation gets
// its own go-github client whose transport mints the installation token and
// caches it until shortly before it expires.
type Client struct {
	apps    *ghinstallation.AppsTransport
	base    http.RoundTripper
	apiURL  string
	baseURL *url.URL
	timeout time.Duration

	mu      sync.Mutex
	clients map[int64]*gh.Client
}

type Option func(*Client)

// WithTransport replaces the round tripper under the app transport.
func WithTransport(tr http.RoundTripper) Option {
	return func(c *Client) {
		if tr != nil {
			c.base = tr
		}
	}
}

// NewClient builds the app client from config. It is constructed once per
// process and shared by every caller.
func NewClient(cfg config.GitHubConfig, opts ...Option) (*Client, error) {
	key, err := auth.ParseAppPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("github app id is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	baseURL, err := url.Parse(apiURL + "/")
	if err != nil {
		return nil, fmt.Errorf("parse github api url: %w", err)
	}

	c := &Client{
		base:    http.DefaultTransport,
		apiURL:  apiURL,
		baseURL: baseURL,
		timeout: timeout,
		clients: make(map[int64]*gh.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.apps = ghinstallation.NewAppsTransportFromPrivateKey(c.base, cfg.AppID, key)
	c.apps.BaseURL = apiURL
	return c, nil
}

// installation returns the cached client for installationID, creating it on
// first use.
func (c *Client) installation(installationID int64) (*gh.Client, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("installation id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[installationID]; ok {
		return client, nil
	}

	itr := ghinstallation.NewFromAppsTransport(c.apps, installationID)
	itr.BaseURL = c.apiURL
	client := gh.NewClient(&http.Client{Transport: itr, Timeout: c.timeout})
	client.BaseURL = c.baseURL
	client.UserAgent = userAgent
	c.clients[installationID] = client
	return client, nil
}

// ForgetInstallation drops the installation's client and its cached token,
// e.g. after the app is uninstalled.
func (c *Client) ForgetInstallation(installationID int64) {
	c.mu.Lock()
	delete(c.clients, installationID)
	c.mu.Unlock()
}

// CommitDiff fetches the files, stats and message of one commit.
func (c *Client) CommitDiff(ctx context.Context, installationID int64, owner, repo, sha string) (*Diff, error) {
	client, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}
	commit, _, err := client.Repositories.GetCommit(ctx, owner, repo, sha, &gh.ListOptions{PerPage: perPage})
	if err != nil {
		return nil, fmt.Errorf("fetch commit %s: %w", sha, err)
	}
	return &Diff{
		Message:   commit.GetCommit().GetMessage(),
		Files:     toFileDiffs(commit.Files),
		Additions: commit.GetStats().GetAdditions(),
		Deletions: commit.GetStats().GetDeletions(),
	}, nil
}

// PullRequestDiff fetches every changed file of a pull request.
func (c *Client) PullRequestDiff(ctx context.Context, installationID int64, owner, repo string, number int) (*Diff, error) {
	client, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}
	files, err := paginate(ctx, func(opts *gh.ListOptions) ([]*gh.CommitFile, *gh.Response, error) {
		return client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pull request %d files: %w", number, err)
	}

	diff := &Diff{Files: toFileDiffs(files)}
	for _, f := range diff.Files {
		diff.Additions += f.Additions
		diff.Deletions += f.Deletions
	}
	return diff, nil
}

// ListCommitsSince lists commits on the default branch newer than since, oldest first.
func (c *Client) ListCommitsSince(ctx context.Context, installationID int64, owner, repo string, since time.Time) ([]CommitRef, error) {
	client, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}
	commits, err := paginate(ctx, func(opts *gh.ListOptions) ([]*gh.RepositoryCommit, *gh.Response, error) {
		return client.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
			Since:       since.UTC(),
			ListOptions: *opts,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list commits for %s/%s: %w", owner, repo, err)
	}

	refs := make([]CommitRef, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		refs = append(refs, toCommitRef(commits[i]))
	}
	return refs, nil
}

// ListInstallationRepositories lists every repository the installation can see.
func (c *Client) ListInstallationRepositories(ctx context.Context, installationID int64) ([]Repository, error) {
	client, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}
	repos, err := paginate(ctx, func(opts *gh.ListOptions) ([]*gh.Repository, *gh.Response, error) {
		page, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, resp, err
		}
		return page.Repositories, resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list installation repositories: %w", err)
	}

	out := make([]Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, toRepository(r))
	}
	return out, nil
}

// paginate follows the Link header until GitHub reports no next page.
func paginate[T any](ctx context.Context, fetch func(*gh.ListOptions) ([]T, *gh.Response, error)) ([]T, error) {
	var all []T
	opts := &gh.ListOptions{PerPage: perPage, Page: 1}
	for range maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, resp, err := fetch(opts)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}
