package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	LLM      LLMConfig             `yaml:"llm"`
	Hosting  HostingConfig         `yaml:"hosting"`
	Models   map[string]ModelEntry `yaml:"models"`
	Limits   LimitsConfig          `yaml:"limits"`
	Retry    RetryConfig           `yaml:"retry"`
	Cache    CacheConfig           `yaml:"cache"`
	Workflow WorkflowConfig        `yaml:"workflow"`
	Store    StoreConfig           `yaml:"store"`
	Scan     ScanConfig            `yaml:"scan"`
	Notify   NotifyConfig          `yaml:"notify"`
	Logger   LoggerConfig          `yaml:"logger"`
	Tracer   TracerConfig          `yaml:"tracer"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // "openai", "bedrock"
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url"`
	Organization   string               `yaml:"organization"`
	Region         string               `yaml:"region"` // bedrock only
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker wrapped around the provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures int           `yaml:"max_failures"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// HostingConfig configures git and pull-request creation.
type HostingConfig struct {
	Token             string        `yaml:"token"`
	APIURL            string        `yaml:"api_url"`
	CloneDir          string        `yaml:"clone_dir"`
	BaseBranch        string        `yaml:"base_branch"`
	BranchPrefix      string        `yaml:"branch_prefix"`
	DocsPath          string        `yaml:"docs_path"`
	CommitMessage     string        `yaml:"commit_message"`
	PRTitle           string        `yaml:"pr_title"`
	PRBody            string        `yaml:"pr_body"`
	Draft             bool          `yaml:"draft"`
	Labels            []string      `yaml:"labels"`
	Reviewers         []string      `yaml:"reviewers"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	AuthorName        string        `yaml:"author_name"`
	AuthorEmail       string        `yaml:"author_email"`
}

// ModelEntry overrides or adds one role in the model budget table.
type ModelEntry struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
}

// LimitsConfig sets the per-model rate budgets.
type LimitsConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	TokensPerMinute   int                   `yaml:"tokens_per_minute"`
	Window            time.Duration         `yaml:"window"`
	Models            map[string]ModelLimit `yaml:"models"`
}

// ModelLimit overrides the default budget for a single model.
type ModelLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`
}

// RetryConfig controls completion retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CacheConfig configures the on-disk completion cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// WorkflowConfig configures the workflow coordinator.
type WorkflowConfig struct {
	MaxRunning  int           `yaml:"max_running"`
	RetainFor   time.Duration `yaml:"retain_for"`
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// StoreConfig selects where terminal run snapshots are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory", "file", "sqlite"
	Path    string `yaml:"path"`
}

// ScanConfig controls which repository files are fed to analysis.
type ScanConfig struct {
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	MaxFiles     int      `yaml:"max_files"`
	MaxFileBytes int      `yaml:"max_file_bytes"`
}

// NotifyConfig configures completion notifications.
type NotifyConfig struct {
	Slack   *SlackNotifyConfig   `yaml:"slack,omitempty"`
	Discord *DiscordNotifyConfig `yaml:"discord,omitempty"`
}

// SlackNotifyConfig posts run summaries to a Slack channel.
type SlackNotifyConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordNotifyConfig posts run summaries to a Discord channel.
type DiscordNotifyConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout", "noop"
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.docsmith.
// Falls back to "./.docsmith" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.docsmith"
	}
	return filepath.Join(home, ".docsmith")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Interval:    30 * time.Second,
				Timeout:     60 * time.Second,
			},
		},
		Hosting: HostingConfig{
			APIURL:            "https://api.github.com",
			CloneDir:          filepath.Join(dataDir, "repos"),
			BaseBranch:        "main",
			BranchPrefix:      "docs/update_",
			DocsPath:          "docs/",
			CommitMessage:     "docs: update documentation",
			PRTitle:           "Documentation Update",
			PRBody:            "This pull request updates the repository documentation.",
			Labels:            []string{"documentation", "automated"},
			RequestsPerSecond: 1,
			Burst:             5,
			Timeout:           30 * time.Second,
			AuthorName:        "doc-smith",
			AuthorEmail:       "doc-smith@users.noreply.github.com",
		},
		Limits: LimitsConfig{
			RequestsPerMinute: 60,
			TokensPerMinute:   90000,
			Window:            time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(dataDir, "cache"),
			TTL:     time.Hour,
		},
		Workflow: WorkflowConfig{
			MaxRunning:  5,
			RetainFor:   time.Hour,
			StepTimeout: 15 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    filepath.Join(dataDir, "runs.db"),
		},
		Scan: ScanConfig{
			Include:      []string{"*.go", "*.py", "*.js", "*.ts", "*.jsx", "*.tsx"},
			Exclude:      []string{"*_test.*", "*.test.*", "*/__pycache__/*", "vendor/*", "node_modules/*"},
			MaxFiles:     40,
			MaxFileBytes: 16 * 1024,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("DOCSMITH_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps DOCSMITH_* and credential env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_ORG_ID"); v != "" {
		cfg.LLM.Organization = v
	}
	if v := os.Getenv("DOCSMITH_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("DOCSMITH_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.LLM.Region == "" {
		cfg.LLM.Region = v
	}

	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Hosting.Token = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_API_URL"); v != "" {
		cfg.Hosting.APIURL = v
	}
	if v := os.Getenv("DOCSMITH_CLONE_DIR"); v != "" {
		cfg.Hosting.CloneDir = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_BASE_BRANCH"); v != "" {
		cfg.Hosting.BaseBranch = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_BRANCH_PREFIX"); v != "" {
		cfg.Hosting.BranchPrefix = v
	}
	if v := os.Getenv("DOCSMITH_DOCS_PATH"); v != "" {
		cfg.Hosting.DocsPath = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_COMMIT_MESSAGE"); v != "" {
		cfg.Hosting.CommitMessage = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_PR_TITLE"); v != "" {
		cfg.Hosting.PRTitle = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_PR_BODY"); v != "" {
		cfg.Hosting.PRBody = v
	}
	if v := os.Getenv("DOCSMITH_GITHUB_PR_DRAFT"); v != "" {
		cfg.Hosting.Draft = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("DOCSMITH_GITHUB_PR_LABELS"); v != "" {
		cfg.Hosting.Labels = splitAndTrim(v, ",")
	}
	if v := os.Getenv("DOCSMITH_GITHUB_REVIEWERS"); v != "" {
		cfg.Hosting.Reviewers = splitAndTrim(v, ",")
	}

	if v := os.Getenv("DOCSMITH_INCLUDE_PATTERNS"); v != "" {
		cfg.Scan.Include = splitAndTrim(v, ",")
	}
	if v := os.Getenv("DOCSMITH_EXCLUDE_PATTERNS"); v != "" {
		cfg.Scan.Exclude = splitAndTrim(v, ",")
	}

	if n, ok := envInt("DOCSMITH_REQUESTS_PER_MINUTE"); ok {
		cfg.Limits.RequestsPerMinute = n
	}
	if n, ok := envInt("DOCSMITH_TOKENS_PER_MINUTE"); ok {
		cfg.Limits.TokensPerMinute = n
	}
	if n, ok := envInt("DOCSMITH_MAX_RETRIES"); ok {
		cfg.Retry.MaxAttempts = n
	}
	if n, ok := envInt("DOCSMITH_RETRY_DELAY"); ok {
		cfg.Retry.BaseDelay = time.Duration(n) * time.Second
	}
	if n, ok := envInt("DOCSMITH_CACHE_TTL"); ok {
		cfg.Cache.TTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv("DOCSMITH_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("DOCSMITH_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true")
	}
	if n, ok := envInt("DOCSMITH_MAX_CONCURRENT_TASKS"); ok {
		cfg.Workflow.MaxRunning = n
	}

	if v := os.Getenv("DOCSMITH_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DOCSMITH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	if tok, ch := os.Getenv("DOCSMITH_SLACK_TOKEN"), os.Getenv("DOCSMITH_SLACK_CHANNEL"); tok != "" && ch != "" {
		cfg.Notify.Slack = &SlackNotifyConfig{Token: tok, Channel: ch}
	}
	if tok, ch := os.Getenv("DOCSMITH_DISCORD_TOKEN"), os.Getenv("DOCSMITH_DISCORD_CHANNEL"); tok != "" && ch != "" {
		cfg.Notify.Discord = &DiscordNotifyConfig{Token: tok, ChannelID: ch}
	}

	if v := os.Getenv("DOCSMITH_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DOCSMITH_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("DOCSMITH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("DOCSMITH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// RequireCredentials reports the first missing credential the pipeline needs
// before any work starts.
func RequireCredentials(cfg *Config) error {
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", domain.ErrConfig)
	}
	if cfg.Hosting.Token == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN environment variable is required", domain.ErrConfig)
	}
	return nil
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
