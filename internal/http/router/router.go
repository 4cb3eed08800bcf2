package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/freelance-wallet/internal/config"
	"github.com/ignatzorin/freelance-wallet/internal/http/handlers"
	"github.com/ignatzorin/freelance-wallet/internal/http/middleware"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

// Handlers набор обработчиков, которые подключает роутер.
type Handlers struct {
	Wallet       *handlers.WalletHandler
	Withdrawal   *handlers.WithdrawalHandler
	AdminWallet  *handlers.AdminWalletHandler
	Notification *handlers.NotificationHandler
	WS           *handlers.WSHandler
	Health       *handlers.HealthHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/wallet", h.Wallet.GetBalance)
		protected.GET("/wallet/transactions", h.Wallet.ListTransactions)
		protected.GET("/wallet/pending-earnings", h.Wallet.PendingEarnings)
		protected.GET("/wallet/health", h.Wallet.Health)

		// Лимит считается по пользователю, поэтому middleware стоит после авторизации.
		withdrawalRateLimit := middleware.RateLimitMiddleware(cfg.WithdrawalRateLimit, cfg.RateLimitPeriod)
		protected.POST("/withdrawals", withdrawalRateLimit, h.Withdrawal.CreateWithdrawal)
		protected.GET("/withdrawals", h.Withdrawal.ListWithdrawals)
		protected.GET("/withdrawals/:id", middleware.UUIDValidator("id"), h.Withdrawal.GetWithdrawal)
		protected.POST("/withdrawals/:id/cancel", middleware.UUIDValidator("id"), h.Withdrawal.CancelWithdrawal)

		if h.Notification != nil {
			protected.GET("/notifications", h.Notification.ListNotifications)
			protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), h.Notification.MarkAsRead)
			protected.PUT("/notifications/read-all", h.Notification.MarkAllAsRead)
		}
	}

	// Служебные маршруты платёжного контура и администрирования
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleAdmin))
	admin.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		admin.POST("/wallets/reconcile", h.AdminWallet.ReconcileAll)

		wallets := admin.Group("/wallets/:userId", middleware.UUIDValidator("userId"))
		wallets.POST("/credit", h.AdminWallet.Credit)
		wallets.POST("/pending", h.AdminWallet.AddPending)
		wallets.POST("/release", h.AdminWallet.ReleasePending)
		wallets.POST("/reconcile", h.AdminWallet.Reconcile)
		wallets.GET("/health", h.AdminWallet.Health)
		wallets.PUT("/withdrawals/:id/status", middleware.UUIDValidator("id"), h.AdminWallet.UpdateWithdrawalStatus)
		wallets.POST("/withdrawals/settle", h.AdminWallet.SettleWithdrawal)
	}

	return r
}
