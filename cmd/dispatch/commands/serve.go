package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/mcpserver"
	"github.com/CR94168/learn-claude-code-cli/internal/server"
)

var (
	servePort     int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch HTTP API",
	Long: `Start dispatch as a server that exposes commands, runs, approval
signals and a server-sent event stream over HTTP.

Runs started over HTTP wait for a signal on POST /run/{runID}/signal
unless they were started with autoApprove.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve commands over the Model Context Protocol on stdio",
	Long: `Serve every command template as an MCP prompt, plus tools to list,
bind and run commands, over stdin and stdout.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, else 8080)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = serveHostname
	if sc := svc.Config().Server; sc != nil {
		if sc.Port != 0 {
			serverConfig.Port = sc.Port
		}
		if sc.CORS != nil {
			serverConfig.EnableCORS = *sc.CORS
		}
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}

	srv := server.New(serverConfig, svc)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("workspace", svc.WorkDir()).
			Str("hostname", serverConfig.Hostname).
			Int("port", serverConfig.Port).
			Str("version", Version).
			Msg("dispatch server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	logging.Info().Msg("server stopped")
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	s := mcpserver.New(svc)
	defer s.Close()

	logging.Info().Str("workspace", svc.WorkDir()).Msg("mcp server on stdio")
	if err := s.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
