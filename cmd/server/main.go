// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"access-key-service/config"
	"access-key-service/internal/crypto"
	"access-key-service/internal/handler"
	"access-key-service/internal/infra"
	"access-key-service/internal/keygen"
	"access-key-service/internal/middleware"
	"access-key-service/internal/repository"
	"access-key-service/internal/usecase"
	"access-key-service/migrations"
)

func main() {
	ctx := context.Background()

	// 設定読み込み（.envがあれば先に読み込まれる）
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracer, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		applied, err := usecase.NewMigrationService(repository.NewMigrationRepository(db), migrations.Source(cfg.MigrationsDir)).ApplyMigrations(ctx)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "count", applied)
	}

	// メトリクス
	var (
		promRegistry  *prometheus.Registry
		cryptoMetrics *crypto.Metrics
		httpMetrics   *middleware.HTTPMetrics
	)
	if cfg.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		cryptoMetrics = crypto.NewMetrics()
		httpMetrics = middleware.NewHTTPMetrics()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			cryptoMetrics,
			httpMetrics,
		)
	}

	// 暗号バックエンド初期化
	registry, err := infra.NewCryptoRegistry(ctx, cfg.Crypto, cryptoMetrics)
	if err != nil {
		slog.Error("failed to init crypto backends", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			slog.Error("failed to close crypto backends", "error", closeErr)
		}
	}()
	slog.Info("crypto backends ready", "active", registry.Active().Tag(), "registered", registry.Tags())

	// DI
	repo := repository.NewAccessKeyRepository(db)
	service := usecase.NewAccessKeyService(repo, registry, keygen.NewGenerator())
	routerCfg := handler.RouterConfig{ServiceName: cfg.OtelServiceName}
	if cfg.MetricsEnabled {
		routerCfg.Metrics = httpMetrics
		routerCfg.Gatherer = promRegistry
	}
	router := handler.NewRouter(handler.NewAccessKeyHandler(service), handler.NewHealthHandler(repo), routerCfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "driver", cfg.DatabaseDriver)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
