// cmd/espace-membre/main.go
//
// This is the entry point for the espace-membre console.
// When you run `espace-membre` from any directory, this is what executes.
//
// Flow:
// 1. Resolve the project directory and create .espace/ if needed
// 2. Load .env, config.yaml and the environment overrides
// 3. Open the state backend, restore the previous run and launch the TUI

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kingrea/espace-membre/internal/config"
	"github.com/kingrea/espace-membre/internal/logbook"
	"github.com/kingrea/espace-membre/internal/logging"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/store"
	"github.com/kingrea/espace-membre/internal/tui"
	"github.com/kingrea/espace-membre/internal/wizard"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	project string
	portal  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "espace-membre",
		Short: "Console de réactivation des comptes membres",
		Long: `espace-membre guides an operator through reactivating a member account:
diagnosis, end-date change request, mailbox re-creation and follow-up.

Run without arguments to start the interactive console. An interrupted run is
resumed on the next start.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.project, "project", "", "project directory holding .espace/ (default: current directory)")
	root.PersistentFlags().StringVar(&flags.portal, "portal", "", "member portal base URL (overrides config and ESPACE_PORTAL_URL)")
	root.AddCommand(newSandboxCmd(flags), newResetCmd(flags))
	return root
}

// loadConfig prepares .espace/ and reads the layered configuration.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	dir := flags.project
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = cwd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	if err := config.InitProjectDir(dir); err != nil {
		return nil, err
	}
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	if flags.portal != "" {
		if err := cfg.SetPortalURL(flags.portal); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openStateStore returns the configured backend and a function releasing it.
func openStateStore(cfg *config.Config) (wizard.StateStore, func() error, error) {
	switch cfg.StateBackend() {
	case config.BackendSQLite:
		db, err := store.NewSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return wizard.NewFileStore(cfg.StatePath()), func() error { return nil }, nil
	}
}

func runConsole(flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogPath(), cfg.Project.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	states, closeStates, err := openStateStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStates(); err != nil {
			logger.Warnw("close state store", "error", err)
		}
	}()

	journal, err := logbook.New(filepath.Join(cfg.LogsDir(), "journal.log"))
	if err != nil {
		return err
	}
	client, err := portal.NewClient(cfg.PortalURL(), portal.WithTimeout(cfg.Project.Portal.Timeout))
	if err != nil {
		return err
	}
	ctrl, err := wizard.New(states, wizard.WithLogger(logger.Named("wizard")))
	if err != nil {
		return err
	}
	app, err := tui.NewApp(ctrl, client,
		tui.WithLogger(logger.Named("tui")),
		tui.WithLogbook(journal),
		tui.WithPolling(cfg.Polling()),
		tui.WithRequestTimeout(cfg.Project.Portal.Timeout),
	)
	if err != nil {
		return err
	}
	logger.Infow("console starting", "portal", cfg.PortalURL(), "backend", cfg.StateBackend())

	// tea.NewProgram creates a new bubbletea application
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Efface la session en cours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			states, closeStates, err := openStateStore(cfg)
			if err != nil {
				return err
			}
			defer closeStates()
			if err := states.Clear(); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session effacée.")
			return nil
		},
	}
}
