package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/config"
	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/github"
	"github.com/matapouriblue/matapouri-blue/internal/gitpush"
	"github.com/matapouriblue/matapouri-blue/internal/logger"
	"github.com/matapouriblue/matapouri-blue/internal/site"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// app carries state shared by every subcommand once the root has loaded the
// configuration.
type app struct {
	configFile string
	cfg        *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "matapouri",
		Short: "Run and maintain the Matapouri Blue website",
		Long: `Serves the Matapouri Blue website and manages its content backups.
Backups are JSON files in the backup directory; the project can be pushed to
GitHub through the contents API or the git command line.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./matapouri.yaml if present)")
	flags.String("project-dir", config.DefaultConfig.ProjectDir, "Website project directory")
	flags.String("backup-dir", config.DefaultConfig.BackupDir, "Backup directory, relative to the project directory")
	flags.String("log-level", config.DefaultConfig.LogLevel, "Log level: debug, info, warn or error")

	cmd.AddCommand(
		a.newServeCmd(),
		a.newBackupCmd(),
		a.newPushCmd(),
		a.newGitHubCmd(),
	)
	return cmd
}

// load reads the configuration and installs the logger
func (a *app) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd, a.configFile)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetDefault(logger.New(level, cmd.ErrOrStderr()))

	a.cfg = cfg
	return nil
}

func (a *app) backupStore() *backup.Store {
	return backup.New(a.cfg.BackupPath())
}

func (a *app) contentStore() *content.Store {
	return content.NewStore(a.cfg.ProjectDir)
}

func (a *app) githubClient() *github.Client {
	return github.NewClient(a.cfg.GitHub.Token, github.Options{
		Owner:     a.cfg.GitHub.Owner,
		Repo:      a.cfg.GitHub.Repo,
		Branch:    a.cfg.GitHub.Branch,
		BackupDir: a.cfg.BackupPath(),
	})
}

// pusher returns the push implementation for mode
func (a *app) pusher(mode string) (site.Pusher, error) {
	switch mode {
	case config.PushModeAPI:
		return a.githubClient(), nil
	case config.PushModeGit:
		return gitpush.New(gitpush.Options{
			RepoURL:     a.cfg.RepoCloneURL(),
			Token:       a.cfg.GitHub.Token,
			Branch:      a.cfg.GitHub.Branch,
			AuthorName:  a.cfg.GitHub.AuthorName,
			AuthorEmail: a.cfg.GitHub.AuthorEmail,
			BackupDir:   a.cfg.BackupPath(),
		}), nil
	default:
		return nil, fmt.Errorf("invalid push mode: %s (must be %q or %q)", mode, config.PushModeAPI, config.PushModeGit)
	}
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
