package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/septivank/ledger-relay-gateway/internal/batch"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/oracle"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/traceability"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Relay commits a single request for a resolved client.
type Relay interface {
	SubmitAs(ctx context.Context, client enterprise.Client, req record.Request) (relayer.Receipt, error)
}

// BatchRunner executes a batch for a resolved client.
type BatchRunner interface {
	RunAs(ctx context.Context, caller enterprise.Client, ops []record.Request) (batch.Job, error)
}

// ChainVerifier rebuilds the traceability chain of a product.
type ChainVerifier interface {
	Verify(ctx context.Context, productID string) (traceability.Chain, error)
}

// Authenticator resolves an API key to its enterprise client.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (enterprise.Client, error)
}

// Oracle serves aggregated market and ledger reads.
type Oracle interface {
	Snapshot(ctx context.Context, user *common.Address) oracle.Snapshot
	Prices(ctx context.Context) []oracle.PricePoint
	Price(ctx context.Context, symbol string) (oracle.PricePoint, bool)
	Health() oracle.Health
}

// Server holds the HTTP handlers.
type Server struct {
	relay    Relay
	batch    BatchRunner
	verifier ChainVerifier
	auth     Authenticator
	oracle   Oracle
	logger   *zap.Logger
}

// NewServer creates the handler set.
func NewServer(relay Relay, runner BatchRunner, verifier ChainVerifier, auth Authenticator, o Oracle, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		relay:    relay,
		batch:    runner,
		verifier: verifier,
		auth:     auth,
		oracle:   o,
		logger:   logger,
	}
}

// NewEngine builds the gin engine with middleware and routes.
func NewEngine(s *Server, gatherer prometheus.Gatherer, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(s.logger))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/oracle")
	api.GET("/snapshot", s.snapshot)
	api.GET("/prices", s.prices)
	api.GET("/prices/:symbol", s.price)
	api.GET("/price/:symbol", s.price)

	toolbez := api.Group("/toolbez")
	keyed := APIKeyRequired(s.auth)
	toolbez.POST("/iot-ingest", keyed, s.ingest)
	toolbez.POST("/batch", keyed, s.runBatch)
	toolbez.GET("/stats", keyed, s.enterpriseStats)
	toolbez.GET("/verify/:productId", s.verify)

	return r
}

// Run serves engine on port for the lifetime of the fx app.
func Run(lc fx.Lifecycle, r *gin.Engine, port int, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
