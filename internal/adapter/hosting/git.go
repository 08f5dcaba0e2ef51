// Package hosting talks to git and the GitHub REST API.
package hosting

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

// runFunc executes git with args inside dir and returns trimmed stdout.
type runFunc func(ctx context.Context, dir string, env []string, args ...string) (string, error)

// Git implements domain.GitHost with the git command line. The token is
// passed per invocation as an HTTP header and never written to .git/config.
type Git struct {
	cloneDir    string
	token       string
	authorName  string
	authorEmail string
	timeout     time.Duration
	run         runFunc
	logger      *slog.Logger
}

var _ domain.GitHost = (*Git)(nil)

// NewGit creates a Git host rooted at cfg.CloneDir.
func NewGit(cfg config.HostingConfig, logger *slog.Logger) *Git {
	g := &Git{
		cloneDir:    cfg.CloneDir,
		token:       cfg.Token,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		timeout:     5 * time.Minute,
		logger:      logger,
	}
	g.run = g.execGit
	return g
}

func (g *Git) execGit(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", redactArgs(args)[0], err, g.redact(strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// authArgs prefixes args with an Authorization header when a token is set.
func (g *Git) authArgs(args ...string) []string {
	if g.token == "" {
		return args
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + g.token))
	return append([]string{"-c", "http.extraHeader=AUTHORIZATION: basic " + basic}, args...)
}

func (g *Git) redact(s string) string {
	if g.token == "" {
		return s
	}
	return strings.ReplaceAll(s, g.token, "***")
}

// redactArgs drops the auth config so the subcommand leads.
func redactArgs(args []string) []string {
	if len(args) > 2 && args[0] == "-c" {
		return args[2:]
	}
	return args
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Clone implements domain.GitHost. Each clone gets a fresh directory under
// the clone root.
func (g *Git) Clone(ctx context.Context, url, branch string) (string, error) {
	if err := os.MkdirAll(g.cloneDir, 0o700); err != nil {
		return "", fmt.Errorf("create clone dir: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(strings.TrimRight(url, "/")), ".git")
	dir, err := os.MkdirTemp(g.cloneDir, unsafeDirChars.ReplaceAllString(name, "_")+"-")
	if err != nil {
		return "", fmt.Errorf("create clone dir: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dir)

	g.logger.Info("cloning repository", "url", url, "branch", branch, "path", dir)
	if _, err := g.run(ctx, g.cloneDir, nil, g.authArgs(args...)...); err != nil {
		os.RemoveAll(dir)
		return "", domain.NewSubSystemError("hosting", "Git.Clone", domain.ErrAPI, err.Error())
	}
	return dir, nil
}

// CreateBranch implements domain.GitHost.
func (g *Git) CreateBranch(ctx context.Context, path, name string) error {
	if _, err := g.run(ctx, path, nil, "checkout", "-b", name); err != nil {
		return domain.NewSubSystemError("hosting", "Git.CreateBranch", domain.ErrAPI, err.Error())
	}
	return nil
}

// Commit implements domain.GitHost. It writes files relative to path,
// stages exactly those files and returns the new commit id.
func (g *Git) Commit(ctx context.Context, path string, files map[string]string, message string) (string, error) {
	if len(files) == 0 {
		return "", domain.NewDomainError("Git.Commit", domain.ErrValidation, "no files to commit")
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !filepath.IsLocal(name) {
			return "", domain.NewDomainError("Git.Commit", domain.ErrValidation, "path escapes repository: "+name)
		}
		full := filepath.Join(path, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		if err := os.WriteFile(full, []byte(files[name]), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}

	if _, err := g.run(ctx, path, nil, append([]string{"add", "--"}, names...)...); err != nil {
		return "", domain.NewSubSystemError("hosting", "Git.Commit", domain.ErrAPI, err.Error())
	}
	if _, err := g.run(ctx, path, g.authorEnv(), "commit", "-m", message); err != nil {
		return "", domain.NewSubSystemError("hosting", "Git.Commit", domain.ErrAPI, err.Error())
	}
	id, err := g.run(ctx, path, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", domain.NewSubSystemError("hosting", "Git.Commit", domain.ErrAPI, err.Error())
	}
	g.logger.Info("committed documentation", "path", path, "files", len(names), "commit", id)
	return id, nil
}

func (g *Git) authorEnv() []string {
	var env []string
	if g.authorName != "" {
		env = append(env, "GIT_AUTHOR_NAME="+g.authorName, "GIT_COMMITTER_NAME="+g.authorName)
	}
	if g.authorEmail != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+g.authorEmail, "GIT_COMMITTER_EMAIL="+g.authorEmail)
	}
	return env
}

// Push implements domain.GitHost.
func (g *Git) Push(ctx context.Context, path, branch string) error {
	if _, err := g.run(ctx, path, nil, g.authArgs("push", "--set-upstream", "origin", branch)...); err != nil {
		return domain.NewSubSystemError("hosting", "Git.Push", domain.ErrAPI, err.Error())
	}
	g.logger.Info("pushed branch", "branch", branch)
	return nil
}

// Cleanup removes a working copy created by Clone. Paths outside the
// clone root are refused.
func (g *Git) Cleanup(path string) error {
	rel, err := filepath.Rel(g.cloneDir, path)
	if err != nil || !filepath.IsLocal(rel) || rel == "." {
		return domain.NewDomainError("Git.Cleanup", domain.ErrValidation, "not a clone: "+path)
	}
	return os.RemoveAll(path)
}
