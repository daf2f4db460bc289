package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Wallet *handler.WalletHandler
	Health *handler.HealthHandler
	Auth   *handler.Auth
}

// SetupRouter wires the core API and mounts each extension under its name.
// A nil gatherer serves the default prometheus registry.
func SetupRouter(h Handlers, logger *zap.Logger, gatherer prometheus.Gatherer, exts ...extension.Extension) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(logger))

	r.GET("/health", h.Health.Health)
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		api.POST("/account", h.Wallet.CreateAccount)
		api.GET("/payments/:payment_hash", h.Wallet.GetPaymentStatus)

		invoice := api.Group("", h.Auth.Require(model.KeyInvoice))
		invoice.GET("/wallet", h.Wallet.GetWallet)
		invoice.POST("/payments", h.Wallet.CreateInvoice)
		invoice.GET("/payments", h.Wallet.ListPayments)
		invoice.GET("/users/me", h.Wallet.GetMe)

		admin := api.Group("", h.Auth.Require(model.KeyAdmin))
		admin.PUT("/users/me/extensions/:name", h.Wallet.SetCapability)
	}

	for _, ext := range exts {
		ext.RegisterRoutes(r.Group("/" + ext.Name()))
		logger.Info("extension mounted", zap.String("name", ext.Name()))
	}
	return r
}
