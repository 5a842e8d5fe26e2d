// Package main provides the long-running service:
// - Refresh (scheduled): market data → normalization → scoring → training → archive
// - Dashboard: JSON API and websocket notifications
// - Metrics: Prometheus /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/config"
	"defi-risk-lab/internal/dashboard"
	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/datasource/chain"
	"defi-risk-lab/internal/datasource/market"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/normalization"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/reporting"
	"defi-risk-lab/internal/scoring"
	"defi-risk-lab/internal/service"
	"defi-risk-lab/internal/storage"
	chstore "defi-risk-lab/internal/storage/clickhouse"
	"defi-risk-lab/internal/storage/memory"
	"defi-risk-lab/internal/storage/migrations"
	pgstore "defi-risk-lab/internal/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

// stores holds the archive implementations; history may be nil.
type stores struct {
	snapshots storage.SnapshotStore
	history   storage.ScoredRecordStore
	cleanup   func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override env values
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "Dashboard HTTP address")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics HTTP address")
	interval := flag.Duration("refresh-interval", cfg.RefreshInterval, "Pipeline refresh interval")
	reportDir := flag.String("report-dir", "", "Write RISK_REPORT.md and CSV here after each refresh (disabled when empty)")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *httpAddr, *metricsAddr, *reportDir, *interval); err != nil {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, httpAddr, metricsAddr, reportDir string, interval time.Duration) error {
	m := observability.DefaultMetrics

	scorer, err := loadScorer(cfg.ScoringConfigPath)
	if err != nil {
		return err
	}

	st, err := createStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer st.cleanup()

	source := market.NewClient(cfg.MarketAPIURL,
		market.WithAPIKey(cfg.MarketAPIKey),
		market.WithCategory(cfg.MarketCategory),
		market.WithPerPage(cfg.MarketPerPage),
		market.WithLogger(logger),
		market.WithMetrics(m),
	)

	var chainReader datasource.ChainReader
	if cfg.EthRPCURL != "" {
		reader, err := chain.Dial(ctx, cfg.EthRPCURL)
		if err != nil {
			// Block number is decoration; the service runs without it.
			logger.WithError(err).Warn("ethereum RPC unavailable, latest block disabled")
		} else {
			defer reader.Close()
			chainReader = reader.WithMetrics(m)
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Scorer: scorer,
		Classifier: classifier.New(classifier.Config{
			MaxDepth:     cfg.ClassifierMaxDepth,
			MinSamples:   cfg.ClassifierMinSamples,
			HoldoutEvery: cfg.ClassifierHoldoutEvery,
		}),
		Normalizer: normalization.NewNormalizer(logger),
		Source:     source,
		Chain:      chainReader,
		Logger:     logger,
		Metrics:    m,
	})

	hub := dashboard.NewHub(logger, m)

	var reports *reporting.Generator
	if reportDir != "" {
		reports = reporting.NewGenerator(reportDir)
	}

	refresher, err := service.NewRefresher(service.Options{
		Orchestrator: orch,
		Snapshots:    st.snapshots,
		History:      st.history,
		Notifier:     hub,
		Reports:      reports,
		Timeout:      cfg.PipelineTimeout,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return err
	}
	if err := refresher.Restore(ctx); err != nil {
		logger.WithError(err).Warn("previous snapshot not restored")
	}

	dash := dashboard.NewServer(refresher, hub, logger).WithMetrics(m)
	if st.history != nil {
		dash = dash.WithHistory(st.history)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	servers := []*http.Server{
		{Addr: httpAddr, Handler: dash, ReadHeaderTimeout: 10 * time.Second},
		{Addr: metricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return refresher.Start(gctx, interval)
	})
	for _, srv := range servers {
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).WithField("addr", srv.Addr).Warn("HTTP shutdown")
			}
		}
		return nil
	})

	return g.Wait()
}

func loadScorer(path string) (*scoring.Scorer, error) {
	if path == "" {
		return scoring.NewDefaultScorer(), nil
	}
	sc, err := scoring.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}
	return scoring.NewScorer(sc)
}

// createStores creates the archive stores based on configuration.
func createStores(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*stores, error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return &stores{
			snapshots: memory.NewSnapshotStore(),
			history:   memory.NewScoredRecordStore(),
			cleanup:   func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres connected")

	st := &stores{
		snapshots: pgstore.NewSnapshotStore(pool),
		cleanup:   pool.Close,
	}

	if cfg.ClickhouseDSN == "" {
		logger.Info("CLICKHOUSE_DSN not set, score history disabled")
		return st, nil
	}

	if err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	logger.Info("clickhouse connected")

	st.history = chstore.NewScoredRecordStore(conn)
	st.cleanup = func() {
		_ = conn.Close()
		pool.Close()
	}
	return st, nil
}
