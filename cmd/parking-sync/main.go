// Package main provides the parking-sync binary: it keeps a local zone
// cache and admin audit history in sync with the parking occupancy feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/parking-sync/internal/config"
	"github.com/rickgao/parking-sync/internal/httpapi"
	"github.com/rickgao/parking-sync/internal/store"
	"github.com/rickgao/parking-sync/internal/syncsvc"
	"github.com/rickgao/parking-sync/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "parking-sync",
		Short: "Real-time occupancy sync for parking terminals",
		Long: `parking-sync connects to the parking occupancy feed, keeps a local zone
cache and admin audit history up to date, and persists both so a terminal
can keep serving the last known state while offline.

Examples:
  parking-sync run -c configs/parking-sync.example.yaml
  parking-sync run --http-addr :8080
  parking-sync status --addr http://localhost:8080`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync service",
		RunE:  runService,
	}
	runCmd.Flags().StringP("config", "c", "", "config file path")
	runCmd.Flags().String("http-addr", "", "operator HTTP address (overrides config)")
	runCmd.Flags().String("log-level", "", "log level (overrides config)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of a running instance",
		RunE:  printStatus,
	}
	statusCmd.Flags().String("addr", "http://localhost:8080", "operator HTTP base URL")

	rootCmd.AddCommand(runCmd, statusCmd, &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parking-sync %s\n", version.String())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runService(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTP.Addr, _ = cmd.Flags().GetString("http-addr")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := buildZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting parking-sync",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("instance", cfg.Instance.ID),
		zap.String("feed", cfg.Feed.URL),
		zap.String("store", cfg.Store.Type),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	svc := syncsvc.New(cfg, st, syncsvc.WithLogger(logger))
	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("failed to start sync service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		router := httpapi.NewServer(logger.Named("http"), svc).Handler()
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting http server", zap.String("address", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return svc.Dispose(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("parking-sync stopped")
	return err
}

func printStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/status", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, body)
	}

	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
