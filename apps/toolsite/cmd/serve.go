package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/toolsite/pkg/qapi"
	"github.com/quatton/toolsite/pkg/qapi/config"
	"github.com/quatton/toolsite/pkg/qapi/routes"
	"github.com/quatton/toolsite/pkg/qapi/services"
)

const (
	janitorSchedule = "@every 10m"
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolsite server",
	Long: `Starts the HTTP API on HOST:PORT. Configuration comes from the
environment (and a .env file in development); see "toolsite serve --help-env".`,
	RunE: serve,
}

var serveHelpEnv bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveHelpEnv, "help-env", false, "Print the resolved configuration and exit")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}
	cfg.Print(log.Printf)
	if serveHelpEnv {
		return nil
	}

	logger := cfg.Logger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := services.NewServices(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svcs.Close()

	svcs.Janitor.Sweep(time.Now())
	if err := svcs.Janitor.Start(janitorSchedule); err != nil {
		return fmt.Errorf("failed to start scratch janitor: %w", err)
	}
	defer svcs.Janitor.Stop()

	if cfg.WatchCatalog {
		if err := svcs.Catalog.Watch(ctx); err != nil {
			logger.Warn("catalog watch disabled", "error", err)
		}
	}

	api := qapi.NewApi()
	routes.RegisterAPI(api.Api, svcs)
	if cfg.WebDir != "" {
		api.Router.Handle("/*", http.FileServer(http.Dir(cfg.WebDir)))
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 toolsite starting on http://%s\n", cfg.Addr())
	log.Printf("📚 OpenAPI docs: http://%s/docs\n", cfg.Addr())
	log.Printf("📄 OpenAPI spec: http://%s/openapi.json\n", cfg.Addr())
	log.Printf("🗂  %d scripts under %s\n", len(svcs.Catalog.List()), svcs.Catalog.Root())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down, waiting for running scripts")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
