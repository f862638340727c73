// trustmesh-node runs the reputation core: receipt registry, vote engine,
// signal collectors, and the reputation recalculation workers. Transport
// framing (HTTP routing, RPC) belongs to the embedding service; this binary
// hosts the domain and its background loops.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/catalog"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/config"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/decoder"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/endpoint"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/observability"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/receipt"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/reputation"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/signals"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/vote"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // Embedded SQLite driver
)

// node bundles the wired domain components.
type node struct {
	cfg        *config.Config
	obs        *observability.Provider
	db         *sql.DB
	pgdb       *sql.DB
	decoder    *decoder.Decoder
	registry   *receipt.Registry
	engine     *vote.Engine
	aggregator *reputation.Aggregator
	scoreStore reputation.ScoreStore
	dispatcher *reputation.Dispatcher
	redis      *redis.Client
	scorer     *endpoint.Scorer
	collectors reputation.Sources
	logger     *slog.Logger
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := buildNode(ctx, cfg)
	if err != nil {
		slog.Error("node init failed", "error", err)
		os.Exit(1)
	}
	defer n.close()

	if len(os.Args) > 1 && os.Args[1] == "demo" {
		if err := n.runDemo(ctx); err != nil {
			n.logger.Error("demo failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := n.run(ctx); err != nil && err != context.Canceled {
		n.logger.Error("node exited", "error", err)
		os.Exit(1)
	}
}

func buildNode(ctx context.Context, cfg *config.Config) (*node, error) {
	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "trustmesh-core",
		ServiceVersion: "1.0.0",
		Environment:    envName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		return nil, err
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := receipt.NewRegistry(st.receipts)
	collectors := reputation.Sources{
		Votes:        st.votes,
		Receipts:     st.receipts,
		Attestations: signals.NewAttestationStore(),
		Staking:      signals.NewStakingStore(),
		Telemetry:    signals.NewTelemetryStore(),
		Reviews:      signals.NewReviewStore(),
		Endorsements: signals.NewEndorsementStore(),
	}
	aggregator := reputation.NewAggregator(st.scores, collectors)
	dispatcher := reputation.NewDispatcher(aggregator)

	var scheduler vote.Scheduler = dispatcher
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		scheduler = reputation.NewRedisScheduler(redisClient, reputation.DefaultRecalcQueueKey)
	}

	engine := vote.NewEngine(registry, st.votes, scheduler,
		vote.WithWindow(cfg.VotingWindow),
		vote.WithReputationReader(aggregator),
	)

	return &node{
		cfg:        cfg,
		obs:        obs,
		db:         st.db,
		pgdb:       st.pg,
		decoder:    decoder.New(cat),
		registry:   registry,
		engine:     engine,
		aggregator: aggregator,
		scoreStore: st.scores,
		dispatcher: dispatcher,
		redis:      redisClient,
		scorer:     endpoint.NewScorer(endpoint.WithReputationReader(aggregator)),
		collectors: collectors,
		logger:     slog.Default().With("component", "node"),
	}, nil
}

// run hosts the background workers until the context is cancelled. The
// in-process dispatcher always runs (it drains sweep triggers); a Redis
// consumer joins it when a queue is configured.
func (n *node) run(ctx context.Context) error {
	n.logger.Info("trustmesh node started",
		"port", n.cfg.Port,
		"database", databaseKind(n.cfg),
		"scheduler", schedulerKind(n.cfg),
		"voting_window", n.cfg.VotingWindow.String(),
	)

	errCh := make(chan error, 3)
	go func() { errCh <- n.dispatcher.Run(ctx) }()
	go func() { errCh <- n.dispatcher.RunSweeper(ctx, n.scoreStore, n.cfg.SweepInterval) }()
	if n.redis != nil {
		consumer := reputation.NewRedisScheduler(n.redis, reputation.DefaultRecalcQueueKey)
		go func() { errCh <- consumer.Run(ctx, n.aggregator) }()
	}

	select {
	case <-ctx.Done():
		n.logger.Info("shutdown signal received")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (n *node) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.obs.Shutdown(shutdownCtx)
	if n.redis != nil {
		_ = n.redis.Close()
	}
	if n.pgdb != nil {
		_ = n.pgdb.Close()
	}
	_ = n.db.Close()
}

// stores bundles the opened database handles and the stores built on them.
type stores struct {
	db       *sql.DB
	pg       *sql.DB
	receipts receipt.Store
	votes    *vote.SQLiteStore
	scores   reputation.ScoreStore
}

// openStores opens the configured databases and prepares the stores. Empty
// DATABASE_URL runs embedded SQLite; a postgres URL switches the receipt
// store driver while votes and scores ride the embedded store.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	var pgDB *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		pgDB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pgDB.PingContext(ctx); err != nil {
			_ = pgDB.Close()
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	// modernc sqlite is single-writer; serialize access.
	db.SetMaxOpenConns(1)

	var receiptStore receipt.Store
	if pgDB != nil {
		receiptStore = receipt.NewPostgresStore(pgDB)
	} else {
		receiptStore, err = receipt.NewSQLiteStore(db)
		if err != nil {
			return nil, err
		}
	}
	voteStore, err := vote.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	scoreStore, err := reputation.NewSQLiteScoreStore(db)
	if err != nil {
		return nil, err
	}
	return &stores{db: db, pg: pgDB, receipts: receiptStore, votes: voteStore, scores: scoreStore}, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func envName() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

func databaseKind(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

func schedulerKind(cfg *config.Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "in-process"
}
