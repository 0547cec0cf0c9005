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
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/api"
	"prospector/internal/buildinfo"
	"prospector/internal/config"
	"prospector/internal/forecast"
	"prospector/internal/logging"
	"prospector/internal/model"
	"prospector/internal/store"
)

// cli carries state shared by the subcommands.
type cli struct {
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "prospector",
		Short:         "Pocket Prospector API and tools",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if path == "" {
				path = os.Getenv("PROSPECTOR_CONFIG")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Level, c.verbose)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file (default: $PROSPECTOR_CONFIG)")

	root.AddCommand(c.serveCmd(), c.migrateCmd(), c.forecastCmd())
	return root
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := api.NewFromConfig(ctx, c.cfg, c.logger)
			if err != nil {
				return fmt.Errorf("failed to init server: %w", err)
			}
			defer func() { _ = srv.Close() }()

			httpSrv := &http.Server{
				Addr:              c.cfg.Addr(),
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				c.logger.Info("API listening", zap.String("addr", httpSrv.Addr), zap.Any("build", buildinfo.Info()))
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}
			c.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(c.cfg.DatabaseURL) == "" {
				return errors.New("DATABASE_URL is required")
			}
			pg, err := store.NewPostgres(c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()
			if dir != "" {
				err = pg.MigrateDir(dir)
			} else {
				err = pg.Migrate(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			c.logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")
	return cmd
}

func (c *cli) forecastCmd() *cobra.Command {
	var venueType string
	cmd := &cobra.Command{
		Use:   "forecast [history.json]",
		Short: "Forecast revenue from a JSON file of monthly receipts",
		Long: `Reads a JSON array of monthly receipts ({"month","total",...}) and prints
the forecast and volume tier. Use "-" to read from stdin.

Example:
  prospector forecast --venue bar history.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			var history []model.MonthlyReceipt
			if err := json.Unmarshal(data, &history); err != nil {
				return fmt.Errorf("parse history: %w", err)
			}
			res, err := forecast.Compute(history, venueType)
			if err != nil {
				return fmt.Errorf("%w (known: %s)", err, strings.Join(forecast.VenueTypes(), ", "))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&venueType, "venue", forecast.DefaultVenueType, "Venue type")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
