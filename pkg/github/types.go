package github

import (
	"time"

	gh "github.com/google/go-github/v72/github"
)

// FileDiff is one changed file of a commit or pull request.
type FileDiff struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch"`
}

// Diff is the change set of a commit or pull request.
type Diff struct {
	Message   string
	Files     []FileDiff
	Additions int
	Deletions int
}

// CommitRef identifies a commit discovered by listing a repository.
type CommitRef struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	URL         string
	CommittedAt time.Time
}

// Repository is an installation-visible repository.
type Repository struct {
	ID            int64
	Owner         string
	Name          string
	FullName      string
	Private       bool
	DefaultBranch string
}

func toFileDiffs(files []*gh.CommitFile) []FileDiff {
	out := make([]FileDiff, 0, len(files))
	for _, f := range files {
		out = append(out, FileDiff{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Changes:   f.GetChanges(),
			Patch:     f.GetPatch(),
		})
	}
	return out
}

func toCommitRef(c *gh.RepositoryCommit) CommitRef {
	author := c.GetCommit().GetAuthor()
	return CommitRef{
		SHA:         c.GetSHA(),
		Message:     c.GetCommit().GetMessage(),
		AuthorName:  author.GetName(),
		AuthorEmail: author.GetEmail(),
		URL:         c.GetHTMLURL(),
		CommittedAt: author.GetDate().UTC(),
	}
}

func toRepository(r *gh.Repository) Repository {
	return Repository{
		ID:            r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}
