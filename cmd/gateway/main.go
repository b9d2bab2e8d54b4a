package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/ledger-relay-gateway/internal/config"
	"github.com/septivank/ledger-relay-gateway/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	// .env lookup covers containers (cwd) and local runs from bin/ or cmd/gateway
	envPaths := []string{
		".env",
		"../../.env",
	}

	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		grandParentDir := filepath.Dir(parentDir)

		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(grandParentDir, ".env"),
		)
	}

	envLoaded := false
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				absPath, _ := filepath.Abs(envPath)
				fmt.Printf("Loaded environment from: %s\n", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideClock,
			ProvideRegistry,
			ProvideMetrics,
			ProvideDBPool,
			ProvideRedis,
			ProvideClientRepository,
			ProvideRecordStore,
			ProvideAccount,
			ProvideConnector,
			ProvideQuotaLedger,
			ProvideValidator,
			ProvideAnomalyDetector,
			ProvideMQConnection,
			ProvideEventPublisher,
			ProvideRelayer,
			ProvideOrchestrator,
			ProvideVerifier,
			ProvideAggregator,
			ProvideProcessor,
			ProvideServer,
			ProvideEngine,
		),
		fx.Invoke(startHTTPServer, startBalanceMonitor, startIngestConsumer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tempLogger, _ := logging.NewLogger("ledger-relay-gateway", "info")
	tempLogger.Info("starting application...", zap.String("timeout", "30s"))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			tempLogger.Error("APPLICATION START TIMEOUT: Failed to start within 30 seconds. A configured backend (Postgres, Redis or RabbitMQ) is probably not reachable. Check the error messages above for the failing connection.")
		}
		panic(err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}
