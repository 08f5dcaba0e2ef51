// Package docsmith assembles the documentation pipeline: the four role
// agents, their delegation graph and the documentation workflows.
package docsmith

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
	"github.com/Travbz/doc-smith/internal/usecase/budget"
	"github.com/Travbz/doc-smith/internal/usecase/multiagent"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

// Role names.
const (
	RoleTechLead    = "tech_lead"
	RoleCodeAnalyst = "code_analyst"
	RoleDocReviewer = "doc_reviewer"
	RoleGitHub      = "github"
)

// promptDigestChars bounds the source text sent with a single prompt.
const promptDigestChars = 8000

// Edges returns the delegation graph of the pipeline.
func Edges() []multiagent.Edge {
	return []multiagent.Edge{
		{From: RoleTechLead, To: RoleGitHub},
		{From: RoleTechLead, To: RoleCodeAnalyst},
		{From: RoleTechLead, To: RoleDocReviewer},
		{From: RoleCodeAnalyst, To: RoleDocReviewer},
	}
}

// modelRoles maps each agent to its entry in the model budget table.
var modelRoles = map[string]string{
	RoleTechLead:    budget.RoleArchitecture,
	RoleCodeAnalyst: budget.RoleCodeAnalysis,
	RoleDocReviewer: budget.RoleReview,
	RoleGitHub:      budget.RoleDocumentation,
}

// Options wires the pipeline's collaborators.
type Options struct {
	Git          domain.GitHost
	PullRequests domain.PullRequester
	Completer    agent.Completer
	Models       *budget.Registry
	Prompts      *agent.Prompts
	Hosting      config.HostingConfig
	Scan         config.ScanConfig
	// DryRun skips branch, commit, push and pull request creation.
	DryRun bool
	Bus    domain.EventBus
	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline is the assembled set of agents, router and workflow definitions.
type Pipeline struct {
	Registry    *multiagent.Registry
	Router      *multiagent.Router
	Definitions []workflow.Definition

	agents map[string]*agent.Agent
}

// New builds the four agents, registers them behind the router and returns
// the workflow definitions that drive them.
func New(opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return nil, err
		}
		opts.Prompts = p
	}
	if opts.Models == nil {
		opts.Models = budget.NewRegistry(budget.Defaults())
	}

	registry := multiagent.NewRegistry(opts.Logger)
	router := multiagent.NewRouter(registry, Edges(), opts.Bus, opts.Logger)
	p := &Pipeline{
		Registry: registry,
		Router:   router,
		agents:   make(map[string]*agent.Agent),
	}

	gh := &githubRole{
		git:     opts.Git,
		prs:     opts.PullRequests,
		scanner: NewScanner(opts.Scan),
		hosting: opts.Hosting,
		dryRun:  opts.DryRun,
		now:     opts.Now,
	}
	analyst := &analystRole{docsPath: opts.Hosting.DocsPath}
	tables := map[string]map[string]agent.TaskHandler{
		RoleTechLead:    techLeadHandlers(),
		RoleCodeAnalyst: analyst.handlers(),
		RoleDocReviewer: reviewerHandlers(),
		RoleGitHub:      gh.handlers(),
	}

	for _, role := range []string{RoleTechLead, RoleCodeAnalyst, RoleDocReviewer, RoleGitHub} {
		model, err := opts.Models.Get(modelRoles[role])
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", role, err)
		}
		a := agent.New(agent.Options{
			Role:      role,
			Model:     model,
			Handlers:  tables[role],
			Completer: opts.Completer,
			Delegator: router,
			Prompts:   opts.Prompts,
			Bus:       opts.Bus,
			Logger:    opts.Logger,
		})
		if err := registry.Register(a); err != nil {
			return nil, err
		}
		p.agents[role] = a
	}

	p.Definitions = Definitions(router, opts.Prompts, opts.Hosting.DocsPath)
	return p, nil
}

// Agent returns the agent for role.
func (p *Pipeline) Agent(role string) (*agent.Agent, bool) {
	a, ok := p.agents[role]
	return a, ok
}

// repoView is the part of a prepared repository that prompts need.
type repoView struct {
	url         string
	name        string
	path        string
	description string
	structure   *Structure
}

func viewRepo(info map[string]any) repoView {
	v := repoView{}
	v.url, _ = info["repo_url"].(string)
	v.name, _ = info["name"].(string)
	v.path, _ = info["repo_path"].(string)
	v.structure, _ = info["structure"].(*Structure)
	if meta := asStringMap(info["metadata"]); meta != nil {
		v.description, _ = meta["description"].(string)
	}
	return v
}

func (v repoView) digest() string {
	if v.structure == nil {
		return ""
	}
	return v.structure.Digest(promptDigestChars)
}

func asStringMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case domain.TaskResult:
		return m
	case domain.Task:
		return m
	}
	return nil
}
