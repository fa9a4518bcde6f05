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
	"strconv"
	"syscall"
	"time"

	"github.com/rpattn/rollcall/internal/config"
	"github.com/rpattn/rollcall/internal/db"
	"github.com/rpattn/rollcall/internal/export"
	"github.com/rpattn/rollcall/internal/fetch"
	"github.com/rpattn/rollcall/internal/ingestion"
	"github.com/rpattn/rollcall/internal/middleware"
	"github.com/rpattn/rollcall/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ingestFlags struct {
	start int
	end   int
}

func newIngestCommand(global *globalFlags) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, extract and store an inclusive range of roll calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, global)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runIngest(cmd.Context(), cmd.OutOrStdout(), cfg, logger, flags)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.start, "start", 0, "First roll call number (inclusive)")
	f.IntVar(&flags.end, "end", 0, "Last roll call number (inclusive)")
	f.Int("year", 0, "Calendar year of the roll calls")
	f.Int("workers", 4, "Concurrent fetches")
	f.String("base-url", fetch.DefaultBaseURL, "Base address of the roll-call documents")
	f.Float64("rate", 0, "Maximum requests per second; 0 disables pacing")
	f.Duration("timeout", 30*time.Second, "Timeout for each fetch attempt")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger, flags ingestFlags) error {
	if cfg.Ingest.Year < 1 {
		return codeError(exitUsage, "--year is required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return codeError(exitSetup, "connecting to database: %s", err)
	}
	defer conn.Close()

	service := newIngestionService(cfg, logger, conn, prometheus.NewRegistry())
	summary, runErr := service.Run(ctx, ingestion.Request{Start: flags.start, End: flags.end, Year: cfg.Ingest.Year})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return codeError(exitFailure, "writing summary: %s", err)
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, ingestion.ErrInvalidRequest):
		return codeError(exitUsage, "%s", runErr)
	default:
		return codeError(exitFailure, "ingestion run: %s", runErr)
	}
}

func newIngestionService(cfg config.Config, logger *zap.Logger, conn *db.Connection, reg prometheus.Registerer) *ingestion.Service {
	client := fetch.NewClient(
		fetch.WithBaseURL(cfg.Source.BaseURL),
		fetch.WithTimeout(cfg.Source.Timeout),
		fetch.WithRetryPolicy(cfg.Source.Retry.RetryPolicy()),
		fetch.WithRateLimit(cfg.Source.RequestsPerSecond),
		fetch.WithLogger(logger.Named("fetch")),
	)
	return ingestion.NewService(
		client,
		repository.NewRollCallRepository(conn.Pool),
		repository.NewIngestionLogRepository(conn.Pool),
		ingestion.WithWorkers(cfg.Ingest.Workers),
		ingestion.WithLogger(logger.Named("ingestion")),
		ingestion.WithMetrics(ingestion.NewMetrics(reg)),
	)
}

func newMigrateCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.Up), string(db.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, global)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := db.RunMigrations(cfg.Database, db.Direction(args[0]), logger); err != nil {
				return codeError(exitFailure, "%s", err)
			}
			return nil
		},
	}
}

type exportFlags struct {
	format   string
	out      string
	congress string
	session  string
	rollCall int
}

func newExportCommand(global *globalFlags) *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored rows as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(flags.format)
			if err != nil {
				return codeError(exitUsage, "%s", err)
			}
			if flags.rollCall < 0 {
				return codeError(exitUsage, "--roll-call must be positive")
			}

			cfg, logger, err := setup(cmd, global)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return runExport(cmd.Context(), cmd.OutOrStdout(), cfg, logger, format, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.format, "format", "csv", "Output format: csv or xlsx")
	f.StringVar(&flags.out, "out", "", "Write output to file instead of stdout")
	f.StringVar(&flags.congress, "congress", "", "Only rows from this congress")
	f.StringVar(&flags.session, "session", "", "Only rows from this session")
	f.IntVar(&flags.rollCall, "roll-call", 0, "Only rows from this roll call number")
	return cmd
}

func runExport(ctx context.Context, stdout io.Writer, cfg config.Config, logger *zap.Logger, format export.Format, flags exportFlags) (err error) {
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return codeError(exitSetup, "connecting to database: %s", err)
	}
	defer conn.Close()

	out := stdout
	if flags.out != "" && flags.out != "-" {
		file, err := os.Create(flags.out)
		if err != nil {
			return codeError(exitFailure, "creating output file: %s", err)
		}
		defer func() {
			if closeErr := file.Close(); closeErr != nil && err == nil {
				err = codeError(exitFailure, "closing output file: %s", closeErr)
			}
		}()
		out = file
	}

	filter := repository.RowFilter{Congress: flags.congress, Session: flags.session}
	if flags.rollCall > 0 {
		filter.RollCallNumber = strconv.Itoa(flags.rollCall)
	}

	service := export.NewService(repository.NewRollCallRepository(conn.Pool), export.WithLogger(logger.Named("export")))
	if _, err := service.Export(ctx, out, format, filter); err != nil {
		return codeError(exitFailure, "exporting rows: %s", err)
	}
	return nil
}

func newServeCommand(global *globalFlags) *cobra.Command {
	var allowedOrigins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve ingestion, export and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, global)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runServe(cmd.Context(), cfg, logger, allowedOrigins)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "Listen address")
	f.Int("workers", 4, "Concurrent fetches per ingestion run")
	f.String("base-url", fetch.DefaultBaseURL, "Base address of the roll-call documents")
	f.Float64("rate", 0, "Maximum requests per second; 0 disables pacing")
	f.StringSliceVar(&allowedOrigins, "cors-origin", []string{"http://localhost:3000"}, "Allowed CORS origins")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger, allowedOrigins []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return codeError(exitSetup, "connecting to database: %s", err)
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ingestService := newIngestionService(cfg, logger, conn, registry)
	exportService := export.NewService(repository.NewRollCallRepository(conn.Pool), export.WithLogger(logger.Named("export")))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServeMux(logger, ingestService, exportService, registry, allowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return codeError(exitFailure, "server failed: %s", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return codeError(exitFailure, "server forced to shutdown: %s", err)
	}
	logger.Info("server exited")
	return nil
}

func newServeMux(
	logger *zap.Logger,
	ingestService *ingestion.Service,
	exportService *export.Service,
	gatherer prometheus.Gatherer,
	allowedOrigins []string,
) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/ingest", ingestion.NewHTTPHandler(ingestService))
	mux.Handle("/ingest/logs", ingestion.NewHTTPHandler(ingestService))
	mux.Handle("/export", export.NewHTTPHandler(exportService))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return corsHandler.Handler(middleware.LoggingMiddleware(logger.Named("http"), mux))
}
