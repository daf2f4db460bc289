// Package tpos is a point-of-sale terminal: a public page that issues
// invoices into its owner's wallet.
package tpos

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tag = "tpos"

type Extension struct {
	repo *Repository
	deps extension.Deps
}

var _ extension.Extension = (*Extension)(nil)

func New(db *gorm.DB, deps extension.Deps) *Extension {
	return &Extension{repo: NewRepository(db), deps: deps}
}

func (e *Extension) Name() string { return "tpos" }

func (e *Extension) Models() []any { return []any{&TPoS{}, &Sale{}} }

func (e *Extension) RegisterRoutes(rg *gin.RouterGroup) {
	api := rg.Group("/api/v1/tposs")

	keyed := api.Group("", e.deps.Auth.Require(model.KeyInvoice), e.deps.Auth.RequireCapability(model.CapabilityTPoS))
	keyed.GET("", e.list)
	keyed.POST("", e.create)

	admin := api.Group("", e.deps.Auth.Require(model.KeyAdmin), e.deps.Auth.RequireCapability(model.CapabilityTPoS))
	admin.DELETE("/:tpos_id", e.delete)

	api.POST("/:tpos_id/invoices", e.createInvoice)
	api.GET("/:tpos_id/invoices/:payment_hash", e.checkInvoice)
}

// GET /tpos/api/v1/tposs
func (e *Extension) list(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all_wallets"))
	ids, err := extension.WalletScope(c, e.deps.Wallets, all)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	list, err := e.repo.ListByWallets(c, ids)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type CreateRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Currency string `json:"currency" binding:"required,max=8"`
}

// POST /tpos/api/v1/tposs
func (e *Extension) create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	t := &TPoS{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		WalletID: handler.CurrentWallet(c).ID,
		Name:     req.Name,
		Currency: strings.ToUpper(req.Currency),
	}
	if err := e.repo.Create(c, t); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// DELETE /tpos/api/v1/tposs/:tpos_id
func (e *Extension) delete(c *gin.Context) {
	t, ok := e.find(c)
	if !ok {
		return
	}
	if err := service.Authorize(handler.CurrentWallet(c).ID, t.WalletID); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your TPoS."})
		return
	}
	if err := e.repo.Delete(c, t.ID); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /tpos/api/v1/tposs/:tpos_id/invoices?amount=
func (e *Extension) createInvoice(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || amount < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount must be an integer >= 1"})
		return
	}
	if amount > lightning.MaxInvoiceSat {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount exceeds the invoice limit"})
		return
	}
	t, ok := e.find(c)
	if !ok {
		return
	}

	inv, err := e.deps.Invoices.CreateInvoice(c, service.CreateInvoiceParams{
		WalletID:  t.WalletID,
		AmountSat: amount,
		Memo:      t.Name,
		Extra:     model.Extra{"tag": tag},
	})
	if err != nil {
		e.deps.Logger.Warn("tpos invoice failed", zap.String("tpos_id", t.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := e.repo.CreateSale(c, &Sale{PaymentHash: inv.PaymentHash, TPoSID: t.ID, AmountSat: amount}); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment_hash": inv.PaymentHash, "payment_request": inv.PaymentRequest})
}

// GET /tpos/api/v1/tposs/:tpos_id/invoices/:payment_hash
func (e *Extension) checkInvoice(c *gin.Context) {
	t, ok := e.find(c)
	if !ok {
		return
	}
	hash := c.Param("payment_hash")
	if _, err := e.repo.FindSale(c, t.ID, hash); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Sale does not exist."})
			return
		}
		handler.WriteError(c, err)
		return
	}

	st, err := e.deps.Payments.GetPaymentStatus(c, hash)
	if err != nil {
		e.deps.Logger.Debug("tpos status check failed", zap.String("payment_hash", hash), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"paid": false})
		return
	}
	if st.Paid {
		if err := e.repo.MarkSalePaid(c, hash); err != nil {
			e.deps.Logger.Warn("mark sale paid", zap.String("payment_hash", hash), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, st)
}

func (e *Extension) find(c *gin.Context) (*TPoS, bool) {
	t, err := e.repo.Find(c, c.Param("tpos_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "TPoS does not exist."})
			return nil, false
		}
		handler.WriteError(c, err)
		return nil, false
	}
	return t, true
}
