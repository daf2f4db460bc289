package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey = "X-Api-Key"

	ctxWallet = "wallet"
)

// Auth resolves API keys to wallets.
type Auth struct {
	wallets *service.WalletService
}

func NewAuth(wallets *service.WalletService) *Auth {
	return &Auth{wallets: wallets}
}

// Require admits requests whose key grants at least tier. The admin key
// satisfies invoice-tier routes.
func (a *Auth) Require(tier model.KeyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		w, kt, err := a.wallets.GetWalletByKey(c, key)
		if err != nil {
			if service.IsNotFound(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			WriteError(c, err)
			return
		}
		if kt < tier {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin key required"})
			return
		}
		c.Set(ctxWallet, w)
		c.Next()
	}
}

// RequireCapability admits requests whose wallet owner enabled c. It must
// run after Require.
func (a *Auth) RequireCapability(cp model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := CurrentWallet(c)
		if w == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		ok, err := a.wallets.HasCapability(c, w.UserID, cp)
		if err != nil {
			WriteError(c, err)
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "extension " + string(cp) + " is not enabled"})
			return
		}
		c.Next()
	}
}

// CurrentWallet returns the wallet resolved by Require, or nil.
func CurrentWallet(c *gin.Context) *model.Wallet {
	v, ok := c.Get(ctxWallet)
	if !ok {
		return nil
	}
	w, _ := v.(*model.Wallet)
	return w
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
