package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ignatzorin/freelance-wallet/internal/config"
	"github.com/ignatzorin/freelance-wallet/internal/db"
	"github.com/ignatzorin/freelance-wallet/internal/goroutine"
	httpHandlers "github.com/ignatzorin/freelance-wallet/internal/http/handlers"
	httpRouter "github.com/ignatzorin/freelance-wallet/internal/http/router"
	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/payout"
	"github.com/ignatzorin/freelance-wallet/internal/repository"
	"github.com/ignatzorin/freelance-wallet/internal/service"
	"github.com/ignatzorin/freelance-wallet/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Метрики.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.New(registry)

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	sealer, err := payout.NewSealer(cfg.PayoutSecret)
	if err != nil {
		log.Fatalf("main: не удалось подготовить шифрование реквизитов: %v", err)
	}

	// Репозитории.
	walletRepo := repository.NewWalletRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	notificationService := service.NewNotificationService(notificationRepo)

	// Вебсокеты.
	hub := ws.NewHub()
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Кошелёк.
	engine := ledger.NewEngine(walletRepo, cfg.Policy,
		ledger.WithNotifier(ws.NewLedgerNotifier(hub)),
		ledger.WithMetrics(ledgerMetrics),
		ledger.WithRetry(cfg.CommitMaxAttempts, cfg.CommitBackoff),
	)
	walletService := service.NewWalletService(engine, paymentRepo)
	if cfg.PendingCacheTTL > 0 {
		walletService.SetCache(service.NewCacheService(ctx), cfg.PendingCacheTTL)
	}
	withdrawalService := service.NewWithdrawalService(walletService, engine, sealer, service.NewRoleEligibility(userRepo), ledgerMetrics)
	reconcileService := service.NewReconciliationService(walletService, engine, paymentRepo, ledgerMetrics, cfg.ReconcileConcurrency)

	if cfg.ReconcileInterval > 0 {
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			reconcileService.Run(ctx, cfg.ReconcileInterval)
		})
	}

	// HTTP хэндлеры.
	handlers := httpRouter.Handlers{
		Wallet:       httpHandlers.NewWalletHandler(walletService, reconcileService, cfg.Currency),
		Withdrawal:   httpHandlers.NewWithdrawalHandler(withdrawalService),
		AdminWallet:  httpHandlers.NewAdminWalletHandler(walletService, withdrawalService, reconcileService, cfg.Currency),
		Notification: httpHandlers.NewNotificationHandler(notificationService),
		WS:           httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:       httpHandlers.NewHealthHandler(dbConn),
	}

	// Роутер.
	router := httpRouter.SetupRouter(cfg, handlers, tokenManager, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	})

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
