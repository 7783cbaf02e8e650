package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tr-legal-tech/crbranch/internal/util"
)

const configFile = "config.yml"
const crbranchDir = ".crbranch"

// Defaults matching the conventions of the source repositories: tickets are
// Azure Boards style "AB#<digits>" references and review branches live under
// a "CR/" prefix.
const (
	DefaultTicketPrefix = "AB#"
	DefaultBranchPrefix = "CR/"
	DefaultRemote       = "origin"
	DefaultTokenEnv     = "GITHUB_TOKEN"
)

// Config represents the crbranch configuration stored in .crbranch/config.yml
// at the repository root. Every field has a working default; the file only
// needs to exist to override them.
type Config struct {
	// TicketPrefix is prepended to the digits of a normalized ticket id.
	TicketPrefix string `yaml:"ticket_prefix,omitempty"`

	// BranchPrefix is prepended verbatim to the ticket slug to form the
	// review branch name.
	BranchPrefix string `yaml:"branch_prefix,omitempty"`

	// Remote is the git remote the review branch is pushed to.
	Remote string `yaml:"remote,omitempty"`

	// MainBranch overrides default-branch auto-detection when set.
	MainBranch string `yaml:"main_branch,omitempty"`

	// Owner and Repo identify the hosting repository. When empty they are
	// derived from the remote URL.
	Owner string `yaml:"owner,omitempty"`
	Repo  string `yaml:"repo,omitempty"`

	// TokenEnv names the environment variable holding the hosting API token.
	TokenEnv string `yaml:"token_env,omitempty"`

	// NoDraft creates regular pull requests instead of drafts.
	NoDraft bool `yaml:"no_draft,omitempty"`
}

// Read reads the config from .crbranch/config.yml in the project root.
// Returns the defaults if the file doesn't exist; a malformed file is an
// error rather than silently ignored, since it controls which branches
// get rewritten.
func Read() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Exists reports whether a config file is present in the project root.
func Exists() bool {
	path, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Write writes the config to .crbranch/config.yml in the project root.
// Defaults are filled in first so the written file documents the
// effective settings.
func Write(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	applyDefaults(cfg)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return util.WriteFileAtomic(path, data, 0644)
}

// Path returns the absolute path to the .crbranch/config.yml file.
func Path() (string, error) {
	root, err := util.GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, crbranchDir, configFile), nil
}

// Token returns the hosting API token from the configured environment
// variable, or "" when unset.
func (c *Config) Token() string {
	return os.Getenv(c.TokenEnv)
}

func defaults() *Config {
	return &Config{
		TicketPrefix: DefaultTicketPrefix,
		BranchPrefix: DefaultBranchPrefix,
		Remote:       DefaultRemote,
		TokenEnv:     DefaultTokenEnv,
	}
}

// applyDefaults restores defaults zeroed out by explicit empty values in
// the file.
func applyDefaults(cfg *Config) {
	if cfg.TicketPrefix == "" {
		cfg.TicketPrefix = DefaultTicketPrefix
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}
	if cfg.Remote == "" {
		cfg.Remote = DefaultRemote
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = DefaultTokenEnv
	}
}
