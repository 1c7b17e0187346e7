package githubwebhook

import (
	"encoding/json"
	"strings"

	gogithub "github.com/google/go-github/v72/github"

	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	gh "github.com/angelmondragon/commitscribe-backend/pkg/github"
)

// Event is a decoded GitHub delivery. The concrete type selects the handler;
// payloads are decoded with go-github's webhook types and narrowed to what
// CommitScribe stores.
type Event interface {
	Type() string
	Installation() int64
}

// PushEvent lists the commits of one push to a tracked repository.
type PushEvent struct {
	InstallationID int64
	Ref            string
	Deleted        bool
	Repository     gh.Repository
	Commits        []gh.CommitRef
}

// PullRequestEvent carries the actions that warrant a new summary.
type PullRequestEvent struct {
	Action         string
	InstallationID int64
	Repository     gh.Repository
	Number         int
	Title          string
	Body           string
	URL            string
	State          string
	HeadSHA        string
}

// InstallationEvent reports a change to the app installation itself.
type InstallationEvent struct {
	Action         string
	InstallationID int64
	AccountLogin   string
	Repositories   []gh.Repository
}

// InstallationRepositoriesEvent reports repositories granted to or revoked from
// an installation.
type InstallationRepositoriesEvent struct {
	Action         string
	InstallationID int64
	Added          []gh.Repository
	Removed        []gh.Repository
}

// UnknownEvent is any delivery CommitScribe does not act on.
type UnknownEvent struct {
	Name           string
	Action         string
	InstallationID int64
}

func (e *PushEvent) Type() string { return "push" }

func (e *PushEvent) Installation() int64 { return e.InstallationID }

func (e *PullRequestEvent) Type() string { return "pull_request" }

func (e *PullRequestEvent) Installation() int64 { return e.InstallationID }

func (e *InstallationEvent) Type() string { return "installation" }

func (e *InstallationEvent) Installation() int64 { return e.InstallationID }

func (e *InstallationRepositoriesEvent) Type() string { return "installation_repositories" }

func (e *InstallationRepositoriesEvent) Installation() int64 { return e.InstallationID }

func (e *UnknownEvent) Type() string { return e.Name }

func (e *UnknownEvent) Installation() int64 { return e.InstallationID }

// Summarizable reports whether the pull request action should produce a summary.
func (e *PullRequestEvent) Summarizable() bool {
	switch e.Action {
	case "opened", "synchronize", "reopened":
		return true
	default:
		return false
	}
}

type envelope struct {
	Action       string                 `json:"action"`
	Installation *gogithub.Installation `json:"installation"`
}

var handledEvents = map[string]bool{
	"push":                      true,
	"pull_request":              true,
	"installation":              true,
	"installation_repositories": true,
}

// Parse decodes body according to the X-GitHub-Event header value. Event types
// that are not acted on decode to *UnknownEvent.
func Parse(eventType string, body []byte) (Event, error) {
	if !handledEvents[eventType] {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode github payload")
		}
		return &UnknownEvent{Name: eventType, Action: env.Action, InstallationID: env.Installation.GetID()}, nil
	}

	payload, err := gogithub.ParseWebHook(eventType, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+eventType+" payload")
	}

	switch p := payload.(type) {
	case *gogithub.PushEvent:
		installationID, account, err := installationOf(p.GetInstallation())
		if err != nil {
			return nil, err
		}
		repo := p.GetRepo()
		ev := &PushEvent{
			InstallationID: installationID,
			Ref:            p.GetRef(),
			Deleted:        p.GetDeleted(),
			Repository: repository{
				id:            repo.GetID(),
				name:          repo.GetName(),
				fullName:      repo.GetFullName(),
				ownerLogin:    repo.GetOwner().GetLogin(),
				ownerName:     repo.GetOwner().GetName(),
				private:       repo.GetPrivate(),
				defaultBranch: repo.GetDefaultBranch(),
			}.resolve(account),
			Commits: make([]gh.CommitRef, 0, len(p.Commits)),
		}
		for _, c := range p.Commits {
			ev.Commits = append(ev.Commits, gh.CommitRef{
				SHA:         c.GetID(),
				Message:     c.GetMessage(),
				AuthorName:  c.GetAuthor().GetName(),
				AuthorEmail: c.GetAuthor().GetEmail(),
				URL:         c.GetURL(),
				CommittedAt: c.GetTimestamp().UTC(),
			})
		}
		return ev, nil
	case *gogithub.PullRequestEvent:
		installationID, account, err := installationOf(p.GetInstallation())
		if err != nil {
			return nil, err
		}
		pr := p.GetPullRequest()
		return &PullRequestEvent{
			Action:         p.GetAction(),
			InstallationID: installationID,
			Repository:     fromRepo(p.GetRepo(), account),
			Number:         p.GetNumber(),
			Title:          pr.GetTitle(),
			Body:           pr.GetBody(),
			URL:            pr.GetHTMLURL(),
			State:          pr.GetState(),
			HeadSHA:        pr.GetHead().GetSHA(),
		}, nil
	case *gogithub.InstallationEvent:
		installationID, account, err := installationOf(p.GetInstallation())
		if err != nil {
			return nil, err
		}
		return &InstallationEvent{
			Action:         p.GetAction(),
			InstallationID: installationID,
			AccountLogin:   account,
			Repositories:   fromRepos(p.Repositories, account),
		}, nil
	case *gogithub.InstallationRepositoriesEvent:
		installationID, account, err := installationOf(p.GetInstallation())
		if err != nil {
			return nil, err
		}
		return &InstallationRepositoriesEvent{
			Action:         p.GetAction(),
			InstallationID: installationID,
			Added:          fromRepos(p.RepositoriesAdded, account),
			Removed:        fromRepos(p.RepositoriesRemoved, account),
		}, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unexpected %s payload %T", eventType, payload)
	}
}

func installationOf(inst *gogithub.Installation) (int64, string, error) {
	if inst.GetID() <= 0 {
		return 0, "", pkgerrors.New(pkgerrors.CodeValidation, "github payload missing installation")
	}
	return inst.GetID(), inst.GetAccount().GetLogin(), nil
}

// repository holds the fields every payload flavour of a repository shares.
type repository struct {
	id            int64
	name          string
	fullName      string
	ownerLogin    string
	ownerName     string
	private       bool
	defaultBranch string
}

// resolve fills the owner from the payload, falling back to the full name
// and then the installation account. Installation payloads omit owner objects.
func (r repository) resolve(account string) gh.Repository {
	owner := r.ownerLogin
	if owner == "" {
		owner = r.ownerName
	}
	if owner == "" {
		if before, _, ok := strings.Cut(r.fullName, "/"); ok {
			owner = before
		}
	}
	if owner == "" {
		owner = account
	}
	fullName := r.fullName
	if fullName == "" && owner != "" {
		fullName = owner + "/" + r.name
	}
	return gh.Repository{
		ID:            r.id,
		Owner:         owner,
		Name:          r.name,
		FullName:      fullName,
		Private:       r.private,
		DefaultBranch: r.defaultBranch,
	}
}

func fromRepo(repo *gogithub.Repository, account string) gh.Repository {
	return repository{
		id:            repo.GetID(),
		name:          repo.GetName(),
		fullName:      repo.GetFullName(),
		ownerLogin:    repo.GetOwner().GetLogin(),
		ownerName:     repo.GetOwner().GetName(),
		private:       repo.GetPrivate(),
		defaultBranch: repo.GetDefaultBranch(),
	}.resolve(account)
}

func fromRepos(repos []*gogithub.Repository, account string) []gh.Repository {
	out := make([]gh.Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, fromRepo(r, account))
	}
	return out
}
