// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Secrets only ever come from the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	GitHub  GitHubConfig  `yaml:"github"`
	Build   BuildConfig   `yaml:"build"`
	Publish PublishConfig `yaml:"publish"`
	History HistoryConfig `yaml:"history"`
	Events  EventsConfig  `yaml:"events"`
	Janitor JanitorConfig `yaml:"janitor"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// GitHubConfig carries forge credentials and publication targets.
// Token and HMACToken are environment-only.
type GitHubConfig struct {
	Token       string `yaml:"-"`
	HMACToken   string `yaml:"-"`
	PagesStub   string `yaml:"pages_stub"`
	PagesPRStub string `yaml:"pages_pr_stub"`
	APIBaseURL  string `yaml:"api_base_url"`
}

// BuildConfig controls the build pipeline.
type BuildConfig struct {
	Builder       string   `yaml:"builder"`
	WorkspaceRoot string   `yaml:"workspace_root"`
	AllowedRefs   []string `yaml:"allowed_refs"`
}

// PublishConfig controls the publication transaction.
type PublishConfig struct {
	Branch      string `yaml:"branch"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// HistoryConfig controls the deployment history store.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig controls the optional NATS deployment event stream.
// An empty URL disables publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// JanitorConfig controls periodic workspace sweeping.
type JanitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides and defaults, and validates the result. A .env file next to
// the working directory is honored without overriding real environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// optional file
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	c.GitHub.HMACToken = os.Getenv("GITHUB_HMAC_TOKEN")
	if v := os.Getenv("GITHUB_PAGES_STUB"); v != "" {
		c.GitHub.PagesStub = v
	}
	if v := os.Getenv("GITHUB_PAGES_PR_STUB"); v != "" {
		c.GitHub.PagesPRStub = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.GitHub.APIBaseURL == "" {
		c.GitHub.APIBaseURL = "https://api.github.com"
	}
	if c.Build.Builder == "" {
		c.Build.Builder = "/usr/bin/dawbrn_dockerbuild"
	}
	if c.Build.WorkspaceRoot == "" {
		c.Build.WorkspaceRoot = "/tmp/dawbrn"
	}
	if len(c.Build.AllowedRefs) == 0 {
		c.Build.AllowedRefs = []string{"refs/heads/master", "refs/heads/asciidoctor-mvn"}
	}
	if c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Publish.MaxAttempts == 0 {
		c.Publish.MaxAttempts = 6
	}
	if c.History.Path == "" {
		c.History.Path = "dawbrn.db"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "dawbrn.deployments"
	}
	if c.Janitor.Interval == 0 {
		c.Janitor.Interval = time.Hour
	}
	if c.Janitor.MaxAge == 0 {
		c.Janitor.MaxAge = 24 * time.Hour
	}
}

// Validate checks required settings. Credentials and publication stubs
// have no workable defaults.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.GitHub.HMACToken == "" {
		missing = append(missing, "GITHUB_HMAC_TOKEN")
	}
	if c.GitHub.PagesStub == "" {
		missing = append(missing, "GITHUB_PAGES_STUB")
	}
	if c.GitHub.PagesPRStub == "" {
		missing = append(missing, "GITHUB_PAGES_PR_STUB")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	for _, stub := range []string{c.GitHub.PagesStub, c.GitHub.PagesPRStub} {
		if strings.Count(stub, "/") != 1 {
			return fmt.Errorf("publication stub %q must be owner/repo", stub)
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Publish.MaxAttempts < 1 {
		return fmt.Errorf("publish max_attempts must be positive")
	}
	return nil
}

// RefAllowed reports whether a push ref is on the deploy allow-list.
func (c *Config) RefAllowed(ref string) bool {
	for _, allowed := range c.Build.AllowedRefs {
		if ref == allowed {
			return true
		}
	}
	return false
}
