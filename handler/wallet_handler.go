package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
	"go.uber.org/zap"
)

type WalletHandler struct {
	wallets  *service.WalletService
	invoices *service.InvoiceService
	payments *service.PaymentService
	logger   *zap.Logger
}

func NewWalletHandler(wallets *service.WalletService, invoices *service.InvoiceService,
	payments *service.PaymentService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, invoices: invoices, payments: payments, logger: logger}
}

type CreateAccountRequest struct {
	Name       string `json:"name" binding:"max=128"`
	Email      string `json:"email" binding:"omitempty,email"`
	WalletName string `json:"wallet_name" binding:"max=128"`
}

// WalletResponse carries the keys only when the caller may see them.
type WalletResponse struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	Name       string `json:"name"`
	BalanceSat int64  `json:"balance"`
	AdminKey   string `json:"adminkey,omitempty"`
	InvoiceKey string `json:"inkey,omitempty"`
}

func walletResponse(w *model.Wallet, withKeys bool) WalletResponse {
	resp := WalletResponse{ID: w.ID, User: w.UserID, Name: w.Name, BalanceSat: w.BalanceSat}
	if withKeys {
		resp.AdminKey = w.AdminKey
		resp.InvoiceKey = w.InvoiceKey
	}
	return resp
}

// POST /api/v1/account
func (h *WalletHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}
	user, wallet, err := h.wallets.CreateAccount(c, service.CreateAccountParams{
		UserName:   req.Name,
		Email:      req.Email,
		WalletName: req.WalletName,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "wallet": walletResponse(wallet, true)})
}

// GET /api/v1/wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	caller := CurrentWallet(c)
	w, err := h.wallets.GetWallet(c, caller.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletResponse(w, false))
}

// maxInvoiceExpiry is one year in seconds.
const maxInvoiceExpiry = 365 * 24 * 60 * 60

type CreateInvoiceRequest struct {
	Amount int64             `json:"amount"`
	Memo   string            `json:"memo" binding:"max=639"`
	Extra  map[string]string `json:"extra"`
	Expiry int64             `json:"expiry" binding:"gte=0,lte=31536000"`
}

func secondsToDuration(s int64) time.Duration {
	if s > maxInvoiceExpiry {
		s = maxInvoiceExpiry
	}
	return time.Duration(s) * time.Second
}

// POST /api/v1/payments
func (h *WalletHandler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}
	caller := CurrentWallet(c)
	inv, err := h.invoices.CreateInvoice(c, service.CreateInvoiceParams{
		WalletID:  caller.ID,
		AmountSat: req.Amount,
		Memo:      req.Memo,
		Extra:     req.Extra,
		Expiry:    secondsToDuration(req.Expiry),
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// GET /api/v1/payments
func (h *WalletHandler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	list, total, err := h.invoices.ListPayments(c, CurrentWallet(c).ID, page, size)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "records": list})
}

// GET /api/v1/payments/:payment_hash
func (h *WalletHandler) GetPaymentStatus(c *gin.Context) {
	st, err := h.payments.GetPaymentStatus(c, c.Param("payment_hash"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /api/v1/users/me
func (h *WalletHandler) GetMe(c *gin.Context) {
	view, err := h.wallets.GetUserView(c, CurrentWallet(c).UserID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type SetCapabilityRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PUT /api/v1/users/me/extensions/:name
func (h *WalletHandler) SetCapability(c *gin.Context) {
	var req SetCapabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}
	caller := CurrentWallet(c)
	cp := model.Capability(c.Param("name"))
	if err := h.wallets.SetCapability(c, caller.UserID, cp, *req.Active); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extension": cp, "active": *req.Active})
}
