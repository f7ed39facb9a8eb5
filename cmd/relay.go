package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courtside/database"
	"courtside/handlers"
	"courtside/logger"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Port     string
	Database string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the development relay backend",
		Long: `Run a sqlite-backed relay that serves the conversation REST API and the
realtime socket the client syncs against.

Example:
  courtside relay --port 8080 --db ./courtside.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sqlite database (default from config)")

	return cmd
}

func runRelay(parent context.Context, opts *RelayOptions) error {
	cfg := opts.Config
	port := firstNonEmpty(opts.Port, cfg.Relay.Port)
	dbPath := firstNonEmpty(opts.Database, cfg.Relay.DatabasePath)

	if err := database.Initialize(dbPath); err != nil {
		return err
	}
	defer database.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := handlers.NewHub(handlers.HubOptions{
		FrameRate:  cfg.Relay.FrameRate,
		FrameBurst: cfg.Relay.FrameBurst,
		Registerer: reg,
	})
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handlers.NewRouter(hub, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("relay listening", zap.String("addr", srv.Addr), zap.String("db", dbPath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay: %w", err)
	case <-ctx.Done():
	}

	logger.Log.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
