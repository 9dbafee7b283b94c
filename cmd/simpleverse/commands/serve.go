package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/inbox"
	"github.com/nguyennamkkb/Simpleverse-home/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the image tools over HTTP",
	Long:  "Serve every tool session over HTTP and, when inbox_dir is set, add images dropped into it to the inbox tool.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	wb, err := newWorkbench(cfg, logger)
	if err != nil {
		return err
	}
	defer wb.Close()
	logger.Info("workbench.ready", "backend", cfg.Backend, "formats", wb.Formats())

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.InboxDir != "" {
		tool, ok := simpleverse.ParseTool(cfg.InboxTool)
		if !ok {
			return fmt.Errorf("unknown inbox tool %q", cfg.InboxTool)
		}
		watcher, err := inbox.New(cfg.InboxDir, wb.Session(tool), logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			watcher.Stop()
			return err
		}
		defer watcher.Stop()
	}

	srv := server.New(wb, cfg.HTTPAddr, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	logger.Info("server.stopped")
	return nil
}
