package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"zkcoupon/config"
	"zkcoupon/core/events"
	"zkcoupon/native/confirm"
	"zkcoupon/native/coupon"
	"zkcoupon/native/registry"
	"zkcoupon/native/wallet"
	"zkcoupon/observability/logging"
	"zkcoupon/observability/metrics"
	"zkcoupon/rpc"
	"zkcoupon/services/notify"
	"zkcoupon/storage"
	"zkcoupon/zkproof"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("coupond", cfg.Environment)

	st, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	var verifier zkproof.Verifier = zkproof.NewGroth16Verifier()
	if cfg.Environment == "dev" {
		// The dev verifier accepts HMAC-style proofs so the full flow can be
		// exercised without a trusted setup.
		logger.Warn("using development proof verifier; not for production")
		verifier = zkproof.NewDevVerifier([]byte("coupond-dev"))
	}

	emitter := events.MultiEmitter{
		&notify.Bridge{Notifier: &notify.LogNotifier{Logger: logger}, Logger: logger},
		metrics.NewEventObserver(),
		&logEmitter{log: logger},
	}

	reg := registry.NewRegistry(st)
	reg.SetEmitter(emitter)
	tokens := confirm.NewGateway(st)
	tokens.SetEmitter(emitter)
	wallets := wallet.NewDirectory(st, verifier)
	wallets.SetEmitter(emitter)
	ledger := coupon.NewEngine(st, verifier, tokens)
	ledger.SetEmitter(emitter)

	server := rpc.NewServer(reg, ledger, wallets, logger)
	server.SetConfirmationTTL(time.Duration(cfg.ConfirmationTTLMinutes) * time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, ledger, time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)

	go func() {
		logger.Info("http server listening", "address", cfg.ListenAddress, "backend", cfg.StorageBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemStore(), nil
	case config.BackendLevelDB:
		return storage.NewLevelStore(filepath.Join(cfg.DataDir, "coupon.leveldb"))
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltStore(filepath.Join(cfg.DataDir, "coupon.db"), nil)
	}
}

// sweepLoop periodically reconciles stored state for coupons whose validity
// window elapsed without an operation observing it.
func sweepLoop(ctx context.Context, ledger *coupon.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := ledger.SweepExpired()
			if err != nil {
				logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				logger.Info("expiry sweep completed", "expired", swept)
			}
		}
	}
}

// logEmitter mirrors every core event to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.log == nil || evt == nil {
		return
	}
	l.log.Info("event emitted", "type", evt.EventType())
}
