package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Travbz/doc-smith/internal/adapter/progress"
	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/logger"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
	"github.com/Travbz/doc-smith/internal/usecase/docsmith"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage(os.Stdout)
			return
		case "doctor":
			if err := runDoctor(os.Stdout, configPath(os.Args[2:])); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nRun 'docsmith --help' for usage information.\n", err)
		os.Exit(2)
	}
	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `docsmith - generate and review repository documentation with LLM agents

USAGE:
    docsmith <repo> [FLAGS]
    docsmith doctor [--config PATH]

ARGUMENTS:
    repo               GitHub URL, git@ address, or owner/repo

FLAGS:
    -h, --help         Show this help message
    --branch NAME      Branch to document (default: hosting.base_branch)
    --workflow TYPE    documentation or api_documentation (default: documentation)
    --config PATH      Config file path (default: ./docsmith.yaml)
    --dry-run          Generate and review docs without pushing or opening a PR
    --progress         Show a live step view on stderr

ENVIRONMENT:
    OPENAI_API_KEY     Required for the openai provider
    GITHUB_TOKEN       Required unless --dry-run
    DOCSMITH_*         Override config values

EXAMPLES:
    docsmith acme/widgets
    docsmith https://github.com/acme/widgets --branch develop --progress
    docsmith acme/widgets --workflow api_documentation --dry-run`)
}

// cliArgs holds the parsed command line.
type cliArgs struct {
	Repo       string
	Branch     string
	Workflow   string
	ConfigPath string
	DryRun     bool
	Progress   bool
}

// parseArgs reads the positional repository and flags. Both "--flag value"
// and "--flag=value" are accepted.
func parseArgs(argv []string) (cliArgs, error) {
	args := cliArgs{Workflow: docsmith.WorkflowDocumentation}
	args.ConfigPath = configPath(argv)

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		name, value, hasValue := strings.Cut(arg, "=")

		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") {
				return "", fmt.Errorf("flag %s needs a value", name)
			}
			i++
			return argv[i], nil
		}

		var err error
		switch name {
		case "--branch":
			args.Branch, err = takeValue()
		case "--workflow":
			args.Workflow, err = takeValue()
		case "--config":
			_, err = takeValue()
		case "--dry-run":
			args.DryRun = true
		case "--progress":
			args.Progress = true
		default:
			if strings.HasPrefix(arg, "-") {
				return cliArgs{}, fmt.Errorf("unknown flag: %s", arg)
			}
			if args.Repo != "" {
				return cliArgs{}, fmt.Errorf("unexpected argument: %s", arg)
			}
			args.Repo = arg
		}
		if err != nil {
			return cliArgs{}, err
		}
	}

	if args.Repo == "" {
		return cliArgs{}, fmt.Errorf("missing repository argument")
	}
	switch args.Workflow {
	case docsmith.WorkflowDocumentation, docsmith.WorkflowAPIDocumentation:
	default:
		return cliArgs{}, fmt.Errorf("unknown workflow %q", args.Workflow)
	}
	return args, nil
}

// configPath returns the --config value, then DOCSMITH_CONFIG, then the
// default file name.
func configPath(argv []string) string {
	for i, arg := range argv {
		if arg == "--config" && i+1 < len(argv) {
			return argv[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("DOCSMITH_CONFIG"); p != "" {
		return p
	}
	return "docsmith.yaml"
}

// checkCredentials requires the LLM key always and the hosting token only
// when something will be pushed.
func checkCredentials(cfg *config.Config, dryRun bool) error {
	if !dryRun {
		return config.RequireCredentials(cfg)
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", domain.ErrConfig)
	}
	return nil
}

func run(args cliArgs) error {
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkCredentials(cfg, args.DryRun); err != nil {
		return err
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerShutdown(shutdownCtx)
	}()

	a, err := buildApp(cfg, args.DryRun, log)
	if err != nil {
		return err
	}
	defer a.Close()

	params := workflow.Params{docsmith.ParamRepoURL: args.Repo}
	if args.Branch != "" {
		params[docsmith.ParamBranch] = args.Branch
	}

	var view *progress.Program
	if args.Progress {
		view = progress.Start(a.bus, os.Stderr, args.Workflow, a.stepNames(args.Workflow), stop)
	}

	id, err := a.coord.StartWorkflow(ctx, args.Workflow, params)
	if err != nil {
		if view != nil {
			view.Stop()
		}
		return err
	}
	log.Info("docsmith run started", "workflow_id", id, "repo", args.Repo, "dry_run", args.DryRun)

	// The run is detached from ctx; an interrupt cancels it cooperatively.
	waitDone := make(chan struct{})
	defer close(waitDone)
	go func() {
		select {
		case <-ctx.Done():
			if err := a.coord.Cancel(id); err == nil {
				log.Warn("interrupt received, cancelling run", "workflow_id", id)
			}
		case <-waitDone:
		}
	}()

	res, err := a.coord.Wait(context.Background(), id)
	if view != nil {
		view.Stop()
	}
	if err != nil {
		return err
	}

	snap, err := a.coord.Snapshot(id)
	if err != nil {
		return err
	}

	summary := progress.Summary{
		WorkflowID: id,
		Status:     string(snap.Status),
		DryRun:     args.DryRun,
		Usage:      a.gov.Summary(),
	}
	if out, ok := res.Get("create_pull_request"); ok {
		summary.PRURL = out.String("pr_url")
		summary.Branch = out.String("branch")
	}

	if snap.Status != domain.WorkflowCompleted {
		fmt.Fprintln(os.Stderr, progress.RenderSummary(summary))
		if snap.Error != "" {
			return fmt.Errorf("workflow %s: %s", snap.Status, snap.Error)
		}
		return fmt.Errorf("workflow %s", snap.Status)
	}

	if args.DryRun {
		if docs := documentsOf(res); len(docs) > 0 {
			fmt.Fprint(os.Stdout, progress.RenderDocuments(docs, 100))
		}
	}
	fmt.Fprintln(os.Stdout, progress.RenderSummary(summary))
	if summary.PRURL != "" {
		fmt.Fprintf(os.Stdout, "Pull request: %s\n", summary.PRURL)
	}

	if path := repoPathOf(res); path != "" {
		if err := a.git.Cleanup(path); err != nil {
			log.Warn("clone cleanup failed", "path", path, "error", err)
		}
	}
	return nil
}

// documentsOf returns the documents produced by the last step that has any.
func documentsOf(res workflow.Result) map[string]string {
	for i := len(res.Results) - 1; i >= 0; i-- {
		var docs map[string]string
		switch v := res.Results[i].Result["documentation"].(type) {
		case map[string]string:
			docs = v
		case map[string]any:
			docs = make(map[string]string, len(v))
			for k, text := range v {
				if s, ok := text.(string); ok {
					docs[k] = s
				}
			}
		}
		if len(docs) > 0 {
			return docs
		}
	}
	return nil
}

// repoPathOf finds the working copy created by the run.
func repoPathOf(res workflow.Result) string {
	for _, o := range res.Results {
		if p := o.Result.String("repo_path"); p != "" {
			return p
		}
		if p := domain.TaskResult(o.Result.Map(docsmith.ParamRepoInfo)).String("repo_path"); p != "" {
			return p
		}
	}
	return ""
}
