package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Builder   BuilderConfig   `yaml:"builder"`
	Publish   PublishConfig   `yaml:"publish"`
	LinkCheck LinkCheckConfig `yaml:"linkcheck"`
	Serve     ServeConfig     `yaml:"serve"`
	History   HistoryConfig   `yaml:"history"`
}

// ProjectConfig identifies the documentation project.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// BuilderConfig configures the external documentation builder invocation.
type BuilderConfig struct {
	Binary    string   `yaml:"binary"`     // builder executable, looked up on PATH
	SourceDir string   `yaml:"source_dir"` // directory holding the documentation sources
	BuildDir  string   `yaml:"build_dir"`  // directory receiving built output
	Opts      []string `yaml:"opts,omitempty"`
}

// PublishConfig configures committing built HTML to a hosting branch.
type PublishConfig struct {
	Branch      string      `yaml:"branch"`
	Remote      string      `yaml:"remote"`
	RemoteURL   string      `yaml:"remote_url,omitempty"`
	Message     string      `yaml:"message,omitempty"`
	CNAME       string      `yaml:"cname,omitempty"`
	AuthorName  string      `yaml:"author_name,omitempty"`
	AuthorEmail string      `yaml:"author_email,omitempty"`
	Auth        *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Type     string `yaml:"type"` // "ssh", "token", "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// LinkCheckConfig configures native link verification.
type LinkCheckConfig struct {
	External         bool   `yaml:"external"` // also verify external http(s) links
	Timeout          string `yaml:"timeout,omitempty"`
	NATSURL          string `yaml:"nats_url,omitempty"`
	Subject          string `yaml:"subject,omitempty"`
	KVBucket         string `yaml:"kv_bucket,omitempty"`
	CacheTTL         string `yaml:"cache_ttl,omitempty"`
	CacheTTLFailures string `yaml:"cache_ttl_failures,omitempty"`
}

// ServeConfig configures daemon mode.
type ServeConfig struct {
	RebuildInterval string `yaml:"rebuild_interval,omitempty"` // periodic rebuild, empty disables
	Watch           bool   `yaml:"watch"`                      // rebuild on source changes
	Linkcheck       bool   `yaml:"linkcheck"`                  // verify links after each rebuild
	MetricsAddr     string `yaml:"metrics_addr,omitempty"`     // e.g. ":9090", empty disables
}

// HistoryConfig configures the build run history store.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite database path
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFiles(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file exists and the invocation relies on flags alone.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Builder.Binary == "" {
		c.Builder.Binary = "sphinx-build"
	}
	if c.Builder.SourceDir == "" {
		c.Builder.SourceDir = "docs"
	}
	if c.Builder.BuildDir == "" {
		c.Builder.BuildDir = filepath.Join(c.Builder.SourceDir, "_build")
	}
	if c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Publish.Remote == "" {
		c.Publish.Remote = "origin"
	}
	if c.Publish.Message == "" {
		c.Publish.Message = "Update documentation"
	}
	if c.LinkCheck.Timeout == "" {
		c.LinkCheck.Timeout = "10s"
	}
	if c.LinkCheck.Subject == "" {
		c.LinkCheck.Subject = "docmake.linkcheck.broken"
	}
	if c.LinkCheck.KVBucket == "" {
		c.LinkCheck.KVBucket = "docmake-linkcheck"
	}
	if c.LinkCheck.CacheTTL == "" {
		c.LinkCheck.CacheTTL = "24h"
	}
	if c.LinkCheck.CacheTTLFailures == "" {
		c.LinkCheck.CacheTTLFailures = "1h"
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.Builder.BuildDir, "docmake-history.db")
	}
	if c.Serve.MetricsAddr == "" {
		c.Serve.MetricsAddr = ":9090"
	}
}

// Validate checks config invariants that would otherwise surface as confusing
// runtime failures (e.g. the builder wiping its own sources).
func (c *Config) Validate() error {
	if c.Builder.Binary == "" {
		return fmt.Errorf("builder binary must not be empty")
	}
	src, err := filepath.Abs(c.Builder.SourceDir)
	if err != nil {
		return fmt.Errorf("resolve source dir: %w", err)
	}
	build, err := filepath.Abs(c.Builder.BuildDir)
	if err != nil {
		return fmt.Errorf("resolve build dir: %w", err)
	}
	if src == build {
		return fmt.Errorf("source directory and build directory must differ: %s", src)
	}
	if c.Publish.Auth != nil {
		switch c.Publish.Auth.Type {
		case "", "none", "ssh", "token", "basic":
		default:
			return fmt.Errorf("unsupported authentication type: %s", c.Publish.Auth.Type)
		}
	}
	return nil
}

// HTMLOutputDir returns the directory that holds the rendered HTML site.
func (c *Config) HTMLOutputDir() string {
	return filepath.Join(c.Builder.BuildDir, "html")
}
