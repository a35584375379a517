// Package config loads site settings from defaults, an optional
// matapouri.yaml, environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

const (
	PushModeAPI = "api"
	PushModeGit = "git"
)

// GitHub holds the push target and credentials
type GitHub struct {
	Token       string `mapstructure:"token"`
	Owner       string `mapstructure:"owner"`
	Repo        string `mapstructure:"repo"`
	Branch      string `mapstructure:"branch"`
	PushMode    string `mapstructure:"push_mode"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

// Config represents the structure of the configuration file
type Config struct {
	Addr                string `mapstructure:"addr"`
	ProjectDir          string `mapstructure:"project_dir"`
	BackupDir           string `mapstructure:"backup_dir"`
	LogLevel            string `mapstructure:"log_level"`
	ThunderforestAPIKey string `mapstructure:"thunderforest_api_key"`
	GitHub              GitHub `mapstructure:"github"`
}

// DefaultConfig values
var DefaultConfig = Config{
	Addr:       ":5000",
	ProjectDir: ".",
	BackupDir:  "backups",
	LogLevel:   "info",
	GitHub: GitHub{
		Owner:       "MatapouriBlue",
		Repo:        "Backup",
		PushMode:    PushModeAPI,
		AuthorName:  "Matapouri Blue",
		AuthorEmail: "website@matapouriblue.co.nz",
	},
}

// envBindings maps config keys to environment variables
var envBindings = map[string]string{
	"addr":                  "MATAPOURI_ADDR",
	"project_dir":           "MATAPOURI_PROJECT_DIR",
	"backup_dir":            "MATAPOURI_BACKUP_DIR",
	"log_level":             "LOG_LEVEL",
	"thunderforest_api_key": "THUNDERFOREST_API_KEY",
	"github.token":          "GITHUB_TOKEN",
	"github.owner":          "GITHUB_OWNER",
	"github.repo":           "GITHUB_REPO",
	"github.branch":         "GITHUB_BRANCH",
	"github.push_mode":      "GITHUB_PUSH_MODE",
	"github.author_name":    "GITHUB_AUTHOR_NAME",
	"github.author_email":   "GITHUB_AUTHOR_EMAIL",
}

// flagBindings maps config keys to command-line flag names
var flagBindings = map[string]string{
	"addr":             "addr",
	"project_dir":      "project-dir",
	"backup_dir":       "backup-dir",
	"log_level":        "log-level",
	"github.push_mode": "push-mode",
	"github.branch":    "branch",
}

// Load builds the configuration. configFile may be empty, in which case
// matapouri.yaml (or .json) in the working directory is used if present.
// cmd may be nil; otherwise its flags that were set override every other source.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("matapouri")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	if cmd != nil {
		for key, name := range flagBindings {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				_ = v.BindPFlag(key, flag)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded", logger.Fields{
		"config_file": v.ConfigFileUsed(),
		"project_dir": cfg.ProjectDir,
		"push_mode":   cfg.GitHub.PushMode,
	})
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", DefaultConfig.Addr)
	v.SetDefault("project_dir", DefaultConfig.ProjectDir)
	v.SetDefault("backup_dir", DefaultConfig.BackupDir)
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("thunderforest_api_key", DefaultConfig.ThunderforestAPIKey)
	v.SetDefault("github.token", DefaultConfig.GitHub.Token)
	v.SetDefault("github.owner", DefaultConfig.GitHub.Owner)
	v.SetDefault("github.repo", DefaultConfig.GitHub.Repo)
	v.SetDefault("github.branch", DefaultConfig.GitHub.Branch)
	v.SetDefault("github.push_mode", DefaultConfig.GitHub.PushMode)
	v.SetDefault("github.author_name", DefaultConfig.GitHub.AuthorName)
	v.SetDefault("github.author_email", DefaultConfig.GitHub.AuthorEmail)
}

// Validate checks values that would otherwise fail later at request time
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectDir) == "" {
		return fmt.Errorf("project_dir must not be empty")
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		return fmt.Errorf("backup_dir must not be empty")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	c.GitHub.PushMode = strings.ToLower(strings.TrimSpace(c.GitHub.PushMode))
	switch c.GitHub.PushMode {
	case PushModeAPI, PushModeGit:
	default:
		return fmt.Errorf("invalid github.push_mode: %q (must be %q or %q)", c.GitHub.PushMode, PushModeAPI, PushModeGit)
	}
	return nil
}

// BackupPath returns the backup directory, resolved against the project
// directory when relative.
func (c *Config) BackupPath() string {
	if filepath.IsAbs(c.BackupDir) {
		return c.BackupDir
	}
	return filepath.Join(c.ProjectDir, c.BackupDir)
}

// RepoCloneURL returns the https clone URL of the push target
func (c *Config) RepoCloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", c.GitHub.Owner, c.GitHub.Repo)
}
