package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/config"
	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/gitpush"
	"github.com/matapouriblue/matapouri-blue/internal/site"
)

const branchUsage = "Branch to push to (default: the repository's default branch)"

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the website",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.backupStore()
			if err := store.EnsureRoot(); err != nil {
				return err
			}

			pusher, err := a.pusher(a.cfg.GitHub.PushMode)
			if err != nil {
				return err
			}
			gh := a.githubClient()

			srv, err := site.New(site.Options{
				ProjectDir:          a.cfg.ProjectDir,
				ThunderforestAPIKey: a.cfg.ThunderforestAPIKey,
				RepoURL:             gh.RepoURL(),
				Backups:             store,
				Content:             a.contentStore(),
				Pusher:              pusher,
				Tokens:              gh,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, a.cfg.Addr)
		},
	}
	cmd.Flags().String("addr", config.DefaultConfig.Addr, "Listen address")
	cmd.Flags().String("push-mode", config.DefaultConfig.GitHub.PushMode, "Push implementation used by the dashboard: api or git")
	cmd.Flags().String("branch", "", branchUsage)
	return cmd
}

func (a *app) newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore content backups",
	}
	cmd.AddCommand(a.newBackupCreateCmd(), a.newBackupListCmd(), a.newBackupRestoreCmd())
	return cmd
}

func (a *app) newBackupCreateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Back up the key project files as a full_project snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			res := a.backupStore().BackupProjectFiles(a.cfg.ProjectDir, backup.ProjectFiles)
			if !res.OK() {
				return fmt.Errorf("backup creation failed: %w", res.Err)
			}
			return WriteCreated(cmd.OutOrStdout(), &CreateResult{
				Category: backup.CategoryFullProject,
				Name:     res.Name,
			}, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func (a *app) newBackupListCmd() *cobra.Command {
	var format, sortOrder, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backup records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			order := SortOrder(strings.ToLower(sortOrder))
			if order != SortByName && order != SortByNewest {
				return fmt.Errorf("invalid sort: %s (must be 'name' or 'newest')", sortOrder)
			}

			store := a.backupStore()
			names := filterCategory(store.ListSnapshots(), category)
			sortBackups(names, order)

			return WriteList(cmd.OutOrStdout(), &ListResult{
				Root:    store.Root(),
				Backups: names,
				Count:   len(names),
			}, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&sortOrder, "sort", string(SortByName), "Sort order: name or newest")
	cmd.Flags().StringVar(&category, "category", "", "Only list records of this category")
	return cmd
}

func (a *app) newBackupRestoreCmd() *cobra.Command {
	var format, category string
	var apply bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Show the latest backup of a category",
		Long: `Shows the latest backup of a category. With --apply, the latest
philosophy_content backup is written back to the live homepage content.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			if apply && category != backup.CategoryPhilosophy {
				return fmt.Errorf("--apply is only supported for %s", backup.CategoryPhilosophy)
			}

			res := a.backupStore().ReadLatest(category)
			if errors.Is(res.Err, backup.ErrReadFailed) {
				return res.Err
			}

			result := &RestoreResult{Category: category, Found: res.Found(), Payload: res.Payload}
			if apply && res.Found() {
				if err := a.contentStore().Save(content.PhilosophyFromPayload(res.Payload)); err != nil {
					return fmt.Errorf("applying restored content: %w", err)
				}
				result.Applied = true
			}
			return WriteRestore(cmd.OutOrStdout(), result, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&category, "category", backup.CategoryPhilosophy, "Backup category")
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the restored philosophy content to the site")
	return cmd
}

func (a *app) newPushCmd() *cobra.Command {
	var format, mode string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the project to the GitHub backup repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("mode") {
				mode = a.cfg.GitHub.PushMode
			}
			mode = strings.ToLower(strings.TrimSpace(mode))

			pusher, err := a.pusher(mode)
			if err != nil {
				return err
			}

			files, err := pusher.Push(cmd.Context(), a.cfg.ProjectDir)
			result := &PushResult{Mode: mode, Repo: a.githubClient().RepoURL(), Files: files, Total: len(files)}
			if errors.Is(err, gitpush.ErrNoChanges) {
				result.UpToDate = true
			} else if err != nil {
				return fmt.Errorf("push failed: %w", err)
			}
			return WritePush(cmd.OutOrStdout(), result, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&mode, "mode", config.PushModeAPI, "Push implementation: api or git (default from config)")
	cmd.Flags().String("branch", "", branchUsage)
	return cmd
}

func (a *app) newGitHubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "GitHub integration helpers",
	}

	var format string
	check := &cobra.Command{
		Use:   "check-token",
		Short: "Verify the GitHub token and show its repository permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			status, err := a.githubClient().CheckToken(cmd.Context())
			if err != nil {
				return err
			}
			return WriteTokenStatus(cmd.OutOrStdout(), status, f)
		},
	}
	check.Flags().StringVar(&format, "format", "text", "Output format: text or json")

	cmd.AddCommand(check)
	return cmd
}
