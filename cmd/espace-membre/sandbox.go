package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/espace-membre/internal/logging"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/sandbox"
)

const sandboxShutdownTimeout = 5 * time.Second

func newSandboxCmd(flags *globalFlags) *cobra.Command {
	var (
		port     int
		operator string
	)
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Sert un faux espace membre local avec des membres de démonstration",
		Long: `Starts a local portal API backed by an in-memory directory seeded with demo
members. Change requests merge and mailboxes activate after the delays set in
the sandbox section of config.yaml, so every step of the console can be tried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogPath(), cfg.Project.Logging.Level)
			if err != nil {
				return err
			}
			defer logger.Close()

			settings := sandbox.SettingsFromConfig(cfg)
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			memory := portal.NewMemory(settings.Portal)
			memory.Seed(sandbox.DemoMembers(time.Now())...)
			if operator != "" {
				memory.Login(operator)
			}
			server, err := sandbox.NewServer(settings, memory, sandbox.WithLogger(logger.Named("sandbox")))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := server.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Faux espace membre sur %s (ctrl+c pour arrêter)\n", server.BaseURL())
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), sandboxShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&operator, "operator", "", "open an operator session at startup")
	return cmd
}
