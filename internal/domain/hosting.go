package domain

import "context"

// GitHost performs local git operations against a working copy.
type GitHost interface {
	Clone(ctx context.Context, url, branch string) (string, error)
	CreateBranch(ctx context.Context, path, name string) error
	Commit(ctx context.Context, path string, files map[string]string, message string) (string, error)
	Push(ctx context.Context, path, branch string) error
}

// PullRequestInput describes a pull request to open.
type PullRequestInput struct {
	RepoRef   string
	Title     string
	Body      string
	Head      string
	Base      string
	Draft     bool
	Labels    []string
	Reviewers []string
}

// PullRequest identifies an opened pull request.
type PullRequest struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
}

// PullRequester opens pull requests on the source host.
type PullRequester interface {
	OpenPullRequest(ctx context.Context, in PullRequestInput) (*PullRequest, error)
}

// Notifier delivers a short human-readable message to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, message string) error
}
