package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/httpapi"
	"github.com/dusk-indust/briefing/internal/mcptools"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP streamable endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			mcpServer := mcptools.NewMCPServer(mcptools.NewBriefingService(a.store, a.exec))
			srv, err := httpapi.NewServer(httpapi.Deps{
				Store:    a.store,
				Executor: a.exec,
				MCP:      mcptools.NewHTTPHandler(mcpServer),
				Log:      a.log,
			}, httpapi.Config{
				Addr:       a.cfg.Server.Addr,
				MCPPath:    a.cfg.Server.MCPPath,
				BatchLimit: a.cfg.Server.BatchLimit,
				StuckAfter: a.cfg.Status.StuckAfter,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error(shutdownCtx, "shutdown", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools on stdio",
		Long: `Serve the briefing MCP tools on stdin/stdout for an MCP client.
Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			return mcptools.RunStdio(ctx, mcptools.NewMCPServer(mcptools.NewBriefingService(a.store, a.exec)))
		},
	}
}
