package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

const (
	defaultAPIURL   = "https://api.github.com"
	maxResponseBody = 1024 * 1024
)

// GitHub implements domain.PullRequester against the GitHub REST API.
// Requests are paced by a token bucket so bursts of runs stay under the
// secondary rate limits.
type GitHub struct {
	apiURL  string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.PullRequester = (*GitHub)(nil)

// NewGitHub creates a client from hosting config.
func NewGitHub(cfg config.HostingConfig, logger *slog.Logger) *GitHub {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &GitHub{
		apiURL:  apiURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// OpenPullRequest implements domain.PullRequester. Labels and reviewers are
// applied after creation; failures there are logged and do not fail the
// call since the pull request already exists.
func (g *GitHub) OpenPullRequest(ctx context.Context, in domain.PullRequestInput) (*domain.PullRequest, error) {
	ctx, span := tracer.StartSpan(ctx, "github.open_pull_request",
		trace.WithAttributes(tracer.StringAttr("github.repo", in.RepoRef)),
	)
	defer span.End()

	owner, repo, err := SplitRepoRef(in.RepoRef)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	req := createPullRequest{Title: in.Title, Body: in.Body, Head: in.Head, Base: in.Base, Draft: in.Draft}
	var resp pullRequestResponse
	if err := g.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), req, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	pr := &domain.PullRequest{URL: resp.HTMLURL, Number: resp.Number}

	if len(in.Labels) > 0 {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, pr.Number)
		if err := g.do(ctx, http.MethodPost, path, map[string][]string{"labels": in.Labels}, nil); err != nil {
			g.logger.Warn("github: add labels failed", "pr", pr.URL, "error", err)
		}
	}
	if len(in.Reviewers) > 0 {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/requested_reviewers", owner, repo, pr.Number)
		if err := g.do(ctx, http.MethodPost, path, map[string][]string{"reviewers": in.Reviewers}, nil); err != nil {
			g.logger.Warn("github: request reviewers failed", "pr", pr.URL, "error", err)
		}
	}

	g.logger.Info("pull request opened", "url", pr.URL, "number", pr.Number)
	tracer.SetOK(span)
	return pr, nil
}

func (g *GitHub) do(ctx context.Context, method, path string, body, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewSubSystemError("hosting", "GitHub."+method, domain.ErrAPI, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.NewSubSystemError("hosting", "GitHub."+method, domain.ErrAPI, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method+" "+path, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.NewSubSystemError("hosting", "GitHub."+method, domain.ErrAPI, "decode response: "+err.Error())
	}
	return nil
}

// statusError maps a GitHub error status to a domain sentinel.
func statusError(op string, status int, body []byte) error {
	var msg struct {
		Message string `json:"message"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		detail = msg.Message
	}
	detail = fmt.Sprintf("%d: %s", status, detail)

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = domain.ErrAuthInvalid
	case status == http.StatusForbidden && strings.Contains(strings.ToLower(detail), "rate limit"):
		sentinel = domain.ErrRateLimit
	case status == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status == http.StatusUnprocessableEntity:
		sentinel = domain.ErrValidation
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	default:
		sentinel = domain.ErrAPI
	}
	return domain.NewSubSystemError("hosting", op, sentinel, detail)
}

// SplitRepoRef accepts "owner/repo", an https URL or a git@host:owner/repo
// address and returns owner and repo.
func SplitRepoRef(ref string) (string, string, error) {
	s := strings.TrimSpace(ref)
	s = strings.TrimSuffix(strings.TrimRight(s, "/"), ".git")
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j+1:]
		} else {
			s = ""
		}
	} else if strings.HasPrefix(s, "git@") {
		if j := strings.Index(s, ":"); j >= 0 {
			s = s[j+1:]
		}
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", domain.NewDomainError("GitHub.SplitRepoRef", domain.ErrValidation, "not owner/repo: "+ref)
	}
	return parts[0], parts[1], nil
}

type createPullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Draft bool   `json:"draft,omitempty"`
}

type pullRequestResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}
