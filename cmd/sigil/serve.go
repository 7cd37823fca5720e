package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/sigil"
	audithook "github.com/xraph/sigil/audit_hook"
	"github.com/xraph/sigil/httpapi"
	"github.com/xraph/sigil/internal/config"
	"github.com/xraph/sigil/internal/telemetry"
	"github.com/xraph/sigil/observability"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/store"
	badgerstore "github.com/xraph/sigil/store/badger"
	"github.com/xraph/sigil/store/memory"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: "Run the HTTP service. Configuration is read from SIGIL_* environment " +
			"variables; see internal/config for the full list.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
		},
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelInsecure)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	sink, closeSinks, err := openSinks(cfg, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	defer closeSinks()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	auditLog := logger.With("component", "audit")
	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, e *audithook.AuditEvent) error {
		auditLog.InfoContext(ctx, e.Action,
			"id", e.ID.String(),
			"resource_id", e.ResourceID,
			"outcome", e.Outcome,
			"severity", e.Severity,
			"metadata", e.Metadata,
		)
		return nil
	}), audithook.WithLogger(logger))

	opts := append(cfg.LedgerOptions(),
		sigil.WithLogger(logger),
		sigil.WithPolicy(policy),
		sigil.WithSink(sink),
		sigil.WithPlugin(metrics),
		sigil.WithPlugin(audit),
	)
	ledger := sigil.New(st, opts...)
	if err := ledger.Start(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("start ledger: %w", err)
	}
	defer func() {
		if err := ledger.Stop(); err != nil {
			logger.Error("ledger stop failed", "error", err)
		}
	}()

	if cfg.Level() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(ledger, httpapi.WithLogger(logger), httpapi.WithBasePath(cfg.BasePath))
	engine := api.Engine()
	engine.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("sigil listening",
			"addr", cfg.HTTPAddr,
			"base_path", cfg.BasePath,
			"store", cfg.Store,
			"tiers", policy.Tiers(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		bcfg := badgerstore.DefaultConfig()
		bcfg.Grace = cfg.BadgerGrace
		bcfg.Logger = logger.With("component", "badger")
		s, err := badgerstore.New(bcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

// openSinks builds the settlement fan-out. The log sink is always present.
func openSinks(cfg *config.Config, logger *slog.Logger) (settlement.Sink, func(), error) {
	sinks := settlement.MultiSink{&settlement.LogSink{Logger: logger}}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := settlement.CreateProducer(strings.Join(cfg.KafkaBrokers, ","))
		if err != nil {
			return nil, func() {}, err
		}
		ks := settlement.NewKafkaSink(producer, cfg.KafkaTopic)
		sinks = append(sinks, ks)
		closers = append(closers, func() { ks.Close(int(shutdownTimeout / time.Millisecond)) })
		logger.Info("kafka settlement sink enabled", "topic", cfg.KafkaTopic, "brokers", len(cfg.KafkaBrokers))
	}

	if cfg.JournalPath != "" {
		j, err := settlement.OpenJournal(cfg.JournalPath)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, j)
		closers = append(closers, func() {
			if err := j.Close(); err != nil {
				logger.Warn("journal close failed", "error", err)
			}
		})
		logger.Info("settlement journal enabled", "path", cfg.JournalPath)
	}

	return sinks, closeAll, nil
}
