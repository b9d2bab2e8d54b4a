package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/septivank/ledger-relay-gateway/internal/anomaly"
	"github.com/septivank/ledger-relay-gateway/internal/batch"
	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/septivank/ledger-relay-gateway/internal/config"
	"github.com/septivank/ledger-relay-gateway/internal/db"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"github.com/septivank/ledger-relay-gateway/internal/mq"
	"github.com/septivank/ledger-relay-gateway/internal/oracle"
	"github.com/septivank/ledger-relay-gateway/internal/pricefeed"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/repository"
	"github.com/septivank/ledger-relay-gateway/internal/server"
	"github.com/septivank/ledger-relay-gateway/internal/service"
	"github.com/septivank/ledger-relay-gateway/internal/traceability"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideClock returns the wall clock
func ProvideClock() clock.Clock {
	return clock.Real{}
}

// ProvideRegistry creates the Prometheus registry served at /metrics
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics registers the gateway instruments
func ProvideMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

// ProvideDBPool creates the Postgres pool, or nil when DATABASE_URL is unset
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		logger.Info("DATABASE_URL not set, client registry and records stay in memory")
		return nil, nil
	}
	return db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.MaxConns)
}

// ProvideRedis creates the quota counter client, or nil when REDIS_ADDR is unset
func ProvideRedis(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("[REDIS CONNECTION FAILED] cannot reach %s: %w", cfg.Redis.Addr, err)
			}
			logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// ProvideClientRepository picks the client registry backend. Postgres holds
// the registry when configured; Redis, when configured, owns the counters.
func ProvideClientRepository(
	lc fx.Lifecycle,
	cfg *config.Config,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	logger *zap.Logger,
) (enterprise.Repository, error) {
	clients, err := enterprise.LoadClients(cfg.Enterprise.ClientsFile)
	if err != nil {
		return nil, err
	}

	var base enterprise.Repository = enterprise.NewMemoryRepository(clients...)
	if pool != nil {
		pg := repository.NewPostgresClients(pool)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := pg.Seed(ctx, clients); err != nil {
					return err
				}
				logger.Info("enterprise clients seeded", zap.Int("count", len(clients)))
				return nil
			},
		})
		base = pg
	}

	if rdb != nil {
		return repository.NewRedisClients(rdb, base), nil
	}
	return base, nil
}

// ProvideRecordStore picks the committed record store backend
func ProvideRecordStore(pool *pgxpool.Pool) traceability.Store {
	if pool == nil {
		return traceability.NewMemoryStore()
	}
	return repository.NewPostgresRecords(pool)
}

// ProvideAccount parses the relayer key, or returns nil for a read-only gateway
func ProvideAccount(cfg *config.Config, logger *zap.Logger) (*ledger.Account, error) {
	if cfg.Relayer.PrivateKey == "" {
		logger.Warn("RELAYER_PRIVATE_KEY not set, commitments will be simulated")
		return nil, nil
	}
	acc, err := ledger.NewAccount(cfg.Relayer.PrivateKey)
	if err != nil {
		return nil, err
	}
	logger.Info("relayer account loaded", zap.String("address", acc.String()))
	return acc, nil
}

// ProvideConnector selects the ledger connector once at startup
func ProvideConnector(cfg *config.Config, account *ledger.Account, logger *zap.Logger, m *metrics.Metrics) ledger.Connector {
	if !cfg.LedgerConfigured() {
		logger.Warn("LEDGER_RPC_URL not set, running in demo mode")
		return ledger.Unavailable{}
	}
	return ledger.NewEthConnector(ledger.EthConfig{
		RPCURL:       cfg.Ledger.RPCURL,
		NetworkName:  cfg.Ledger.NetworkName,
		CallTimeout:  cfg.Ledger.CallTimeout,
		PollInterval: cfg.Ledger.PollInterval,
	}, account, logger, m)
}

// ProvideQuotaLedger creates the identity and quota ledger
func ProvideQuotaLedger(repo enterprise.Repository, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *enterprise.QuotaLedger {
	return enterprise.NewQuotaLedger(repo, cfg.Enterprise.InternalKey, logger, m)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideMQConnection dials RabbitMQ, or returns nil when RABBITMQ_URL is unset
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, ingest queue and relay event feed disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL, cfg.ServiceName)
}

// ProvideEventPublisher forwards relay events to RabbitMQ when connected
func ProvideEventPublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (relayer.EventPublisher, error) {
	if conn == nil {
		return service.Discard{}, nil
	}
	pub, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return service.NewEventForwarder(pub), nil
}

// ProvideRelayer creates the fee-delegated relayer
func ProvideRelayer(
	cfg *config.Config,
	quota *enterprise.QuotaLedger,
	v *validator.Validator,
	conn ledger.Connector,
	store traceability.Store,
	events relayer.EventPublisher,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *relayer.Relayer {
	return relayer.NewRelayer(relayer.Config{
		GasLimit:            cfg.Relayer.GasLimit,
		ConfirmTimeout:      cfg.Ledger.ConfirmTimeout,
		ExplorerTxURL:       cfg.Ledger.ExplorerTxURL,
		LowBalanceThreshold: cfg.Relayer.LowBalanceThreshold,
	}, quota, v, conn, store, events, clk, logger, m)
}

// ProvideOrchestrator creates the batch orchestrator
func ProvideOrchestrator(cfg *config.Config, quota *enterprise.QuotaLedger, rel *relayer.Relayer, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *batch.Orchestrator {
	return batch.NewOrchestrator(batch.Config{
		MaxOperations:  cfg.Batch.MaxOperations,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
	}, quota, rel, clk, logger, m)
}

// ProvideVerifier creates the traceability verifier
func ProvideVerifier(store traceability.Store, conn ledger.Connector, detector *anomaly.Detector, logger *zap.Logger) *traceability.Verifier {
	return traceability.NewVerifier(store, conn.IsAvailable(), detector, logger)
}

// ProvideAggregator creates the price and ledger read aggregator
func ProvideAggregator(cfg *config.Config, conn ledger.Connector, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) (*oracle.Aggregator, error) {
	tokenAddr, err := parseOptionalAddress("LEDGER_TOKEN_ADDRESS", cfg.Ledger.TokenAddress)
	if err != nil {
		return nil, err
	}
	rewardsAddr, err := parseOptionalAddress("LEDGER_REWARDS_ADDRESS", cfg.Ledger.RewardsAddress)
	if err != nil {
		return nil, err
	}

	token := pricefeed.NewStatic(map[string]float64{cfg.PriceFeed.TokenSymbol: cfg.PriceFeed.TokenDemoPrice})
	var market pricefeed.Source = pricefeed.NewStatic(nil)
	if cfg.PriceFeed.URL != "" {
		market = pricefeed.NewClient(cfg.PriceFeed.URL, cfg.PriceFeed.Timeout)
	}

	return oracle.NewAggregator(oracle.Config{
		TokenSymbol:    cfg.PriceFeed.TokenSymbol,
		NativeSymbol:   cfg.PriceFeed.NativeSymbol,
		NativeTokenID:  cfg.PriceFeed.NativeTokenID,
		TokenAddress:   tokenAddr,
		RewardsAddress: rewardsAddr,
		CacheTTL:       cfg.Cache.TTL,
	}, conn, token, market, clk, logger, m), nil
}

func parseOptionalAddress(name, raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a hex address: %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

// ProvideProcessor creates the ingest message processor
func ProvideProcessor(rel *relayer.Relayer, logger *zap.Logger, m *metrics.Metrics) *service.Processor {
	return service.NewProcessor(rel, logger, m)
}

// ProvideServer wires the HTTP handlers
func ProvideServer(
	rel *relayer.Relayer,
	orch *batch.Orchestrator,
	verifier *traceability.Verifier,
	quota *enterprise.QuotaLedger,
	agg *oracle.Aggregator,
	logger *zap.Logger,
) *server.Server {
	return server.NewServer(rel, orch, verifier, quota, agg, logger)
}

// ProvideEngine builds the gin engine
func ProvideEngine(s *server.Server, reg *prometheus.Registry, cfg *config.Config) *gin.Engine {
	return server.NewEngine(s, reg, cfg.Debug)
}

func startHTTPServer(lc fx.Lifecycle, engine *gin.Engine, cfg *config.Config, logger *zap.Logger) {
	server.Run(lc, engine, cfg.ServicePort, logger)
}

func startBalanceMonitor(lc fx.Lifecycle, rel *relayer.Relayer, conn ledger.Connector, cfg *config.Config, logger *zap.Logger) {
	if _, ok := conn.RelayerAddress(); !ok || !conn.IsAvailable() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting relayer balance monitor",
				zap.Duration("interval", cfg.Relayer.BalanceCheckInterval))
			go func() {
				defer close(done)
				rel.RunBalanceMonitor(ctx, cfg.Relayer.BalanceCheckInterval)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func startIngestConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.Processor,
) error {
	if conn == nil {
		return nil
	}

	// cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("ingest consumer stopped")
			return nil
		},
	})
	return nil
}
