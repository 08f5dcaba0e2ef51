package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Travbz/doc-smith/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes every check and reports results.
func runDoctor(w io.Writer, cfgPath string) error {
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "LLM credentials", Fn: checkLLMCredentials},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "GitHub token", Fn: checkHostingToken},
		{Name: "git", Fn: checkGitBinary},
		{Name: "Working directories", Fn: checkDirectories},
	}

	fmt.Fprintln(w, "docsmith doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var errNoConfig = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile reports whether the config loaded. A missing file is a
// warning since defaults and environment variables are enough to run.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check %s syntax and values", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

func checkLLMCredentials(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return CheckResult{
				Status:  StatusFail,
				Message: "no API key for the openai provider",
				Fix:     "export OPENAI_API_KEY=...",
			}
		}
		return CheckResult{Status: StatusPass, Message: "openai API key configured"}
	case "bedrock":
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("bedrock uses the AWS credential chain (region %s)", cfg.LLM.Region),
		}
	}
	return CheckResult{Status: StatusFail, Message: fmt.Sprintf("unknown provider %q", cfg.LLM.Provider)}
}

// checkLLMConnectivity probes the provider's base URL. Any HTTP answer,
// including 401, counts as reachable.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if cfg.LLM.Provider != "openai" {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("skipped for provider %q", cfg.LLM.Provider)}
	}
	endpoint := strings.TrimRight(cfg.LLM.BaseURL, "/") + "/models"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection, proxy and llm.base_url",
		}
	}
	resp.Body.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}

func checkHostingToken(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if cfg.Hosting.Token == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no GitHub token, only --dry-run runs will work",
			Fix:     "export GITHUB_TOKEN=...",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("token configured for %s", cfg.Hosting.APIURL)}
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func checkGitBinary(_ *config.Config) CheckResult {
	path, err := lookPath("git")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "git not found in PATH",
			Fix:     "Install git",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

// checkDirectories verifies the clone, cache and store locations are
// writable, creating them if needed.
func checkDirectories(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	dirs := []string{cfg.Hosting.CloneDir}
	if cfg.Cache.Enabled {
		dirs = append(dirs, cfg.Cache.Dir)
	}
	if cfg.Store.Backend == "file" || cfg.Store.Backend == "sqlite" {
		dirs = append(dirs, filepath.Dir(cfg.Store.Path))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot create %s: %v", dir, err),
				Fix:     fmt.Sprintf("mkdir -p %s", dir),
			}
		}
		probe, err := os.CreateTemp(dir, ".doctor-*")
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s is not writable: %v", dir, err),
				Fix:     fmt.Sprintf("chmod u+w %s", dir),
			}
		}
		probe.Close()
		os.Remove(probe.Name())
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d directories writable", len(dirs))}
}
