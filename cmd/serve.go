package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/agentconsole/internal/broadcast"
	"github.com/grovetools/agentconsole/internal/server"
	"github.com/grovetools/agentconsole/internal/watcher"
	grovelogging "github.com/grovetools/core/logging"
	"github.com/spf13/cobra"
)

var ulogServe = grovelogging.NewUnifiedLogger("agconsole.cmd.serve")

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API and change stream over HTTP",
		Long: `Serve the session listing, transcript, export and delete API, and stream
filesystem changes to connected clients as server-sent events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := watcher.New(watcher.Paths{
				SessionRoot:  cfg.ProjectsDir(),
				SettingsFile: cfg.SettingsFile(),
				PluginsFile:  cfg.PluginsFile(),
			}, watcher.Options{SettleWindow: cfg.Watcher.SettleWindow})
			defer w.Close()

			srv := server.New(server.Options{
				Addr:    cfg.Addr(),
				Cache:   openCache(cfg),
				Hub:     broadcast.New(),
				Watcher: w,
			})

			ulogServe.Info("Starting server").
				Field("addr", cfg.Addr()).
				Field("claude_home", cfg.ClaudeHome).
				Pretty(fmt.Sprintf("Serving %s on http://%s\n", cfg.ProjectsDir(), cfg.Addr())).
				PrettyOnly().
				Log(ctx)

			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to bind. Overrides config.")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on. Overrides config.")

	return cmd
}
