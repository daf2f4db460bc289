// Package lnticket sells contact form submissions: a sender pays an
// invoice and the ticket is released to the form owner once paid.
package lnticket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tag = "lnticket"

var whitespace = regexp.MustCompile(`\s+`)

type Extension struct {
	repo     *Repository
	deps     extension.Deps
	notifier *notifier
}

var _ extension.Extension = (*Extension)(nil)

func New(db *gorm.DB, deps extension.Deps) *Extension {
	return &Extension{repo: NewRepository(db), deps: deps, notifier: newNotifier()}
}

func (e *Extension) Name() string { return "lnticket" }

func (e *Extension) Models() []any { return []any{&Form{}, &Ticket{}} }

func (e *Extension) RegisterRoutes(rg *gin.RouterGroup) {
	api := rg.Group("/api/v1")
	keyed := api.Group("", e.deps.Auth.Require(model.KeyInvoice), e.deps.Auth.RequireCapability(model.CapabilityLNTicket))
	keyed.GET("/forms", e.listForms)
	keyed.POST("/forms", e.createForm)
	keyed.PUT("/forms/:form_id", e.updateForm)
	keyed.DELETE("/forms/:form_id", e.deleteForm)
	keyed.GET("/tickets", e.listTickets)
	keyed.DELETE("/tickets/:id", e.deleteTicket)

	// public
	api.POST("/tickets/:id", e.makeTicket)
	api.GET("/tickets/:id", e.ticketStatus)
}

type FormRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Webhook     string `json:"webhook" binding:"omitempty,url,max=512"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" binding:"gte=0,lte=2100000000000000"`
	FlatRate    bool   `json:"flatrate"`
}

func scopeAll(c *gin.Context) bool {
	all, _ := strconv.ParseBool(c.Query("all_wallets"))
	return all
}

// GET /lnticket/api/v1/forms
func (e *Extension) listForms(c *gin.Context) {
	ids, err := extension.WalletScope(c, e.deps.Wallets, scopeAll(c))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	list, err := e.repo.ListForms(c, ids)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// POST /lnticket/api/v1/forms
func (e *Extension) createForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	f := &Form{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		WalletID:    handler.CurrentWallet(c).ID,
		Name:        req.Name,
		Webhook:     req.Webhook,
		Description: req.Description,
		AmountSat:   req.Amount,
		FlatRate:    req.FlatRate,
	}
	if err := e.repo.CreateForm(c, f); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// PUT /lnticket/api/v1/forms/:form_id
func (e *Extension) updateForm(c *gin.Context) {
	var req FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	f, ok := e.ownedForm(c)
	if !ok {
		return
	}
	updated, err := e.repo.UpdateForm(c, f.ID, map[string]interface{}{
		"name":        req.Name,
		"webhook":     req.Webhook,
		"description": req.Description,
		"amount_sat":  req.Amount,
		"flat_rate":   req.FlatRate,
	})
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /lnticket/api/v1/forms/:form_id
func (e *Extension) deleteForm(c *gin.Context) {
	f, ok := e.ownedForm(c)
	if !ok {
		return
	}
	if err := e.repo.DeleteForm(c, f.ID); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /lnticket/api/v1/tickets
func (e *Extension) listTickets(c *gin.Context) {
	ids, err := extension.WalletScope(c, e.deps.Wallets, scopeAll(c))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	list, err := e.repo.ListTickets(c, ids)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type TicketRequest struct {
	Name  string `json:"name" binding:"required,max=128"`
	Email string `json:"email" binding:"omitempty,email"`
	Text  string `json:"ltext" binding:"required"`
	Sats  int64  `json:"sats" binding:"gte=0,lte=2100000000000000"`
}

// POST /lnticket/api/v1/tickets/:form_id
func (e *Extension) makeTicket(c *gin.Context) {
	var req TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	f, err := e.repo.FindForm(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "LNTicket does not exist."})
			return
		}
		handler.WriteError(c, err)
		return
	}

	words := len(whitespace.Split(strings.TrimSpace(req.Text), -1))
	price, err := f.Price(words, req.Sats)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := e.deps.Invoices.CreateInvoice(c, service.CreateInvoiceParams{
		WalletID:  f.WalletID,
		AmountSat: price,
		Memo:      fmt.Sprintf("ticket with %d words on %s", words, f.ID),
		Extra:     model.Extra{"tag": tag},
	})
	if err != nil {
		e.deps.Logger.Warn("lnticket invoice failed", zap.String("form_id", f.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	t := &Ticket{
		ID:       inv.PaymentHash,
		FormID:   f.ID,
		WalletID: f.WalletID,
		Name:     req.Name,
		Email:    req.Email,
		Text:     req.Text,
		Sats:     price,
	}
	if err := e.repo.CreateTicket(c, t); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment_hash": inv.PaymentHash, "payment_request": inv.PaymentRequest})
}

// GET /lnticket/api/v1/tickets/:payment_hash
func (e *Extension) ticketStatus(c *gin.Context) {
	t, err := e.repo.FindTicket(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "LNTicket does not exist."})
			return
		}
		handler.WriteError(c, err)
		return
	}
	if t.Paid {
		c.JSON(http.StatusOK, gin.H{"paid": true})
		return
	}

	paid, err := e.deps.Payments.IsPaid(c, t.ID)
	if err != nil || !paid {
		c.JSON(http.StatusOK, gin.H{"paid": false})
		return
	}
	changed, err := e.repo.MarkPaid(c, t)
	if err != nil {
		e.deps.Logger.Warn("mark ticket paid", zap.String("payment_hash", t.ID), zap.Error(err))
	}
	if changed {
		e.notify(c, t)
	}
	c.JSON(http.StatusOK, gin.H{"paid": true})
}

func (e *Extension) notify(ctx context.Context, t *Ticket) {
	f, err := e.repo.FindForm(ctx, t.FormID)
	if err != nil || f.Webhook == "" {
		return
	}
	if err := e.notifier.ticketPaid(context.WithoutCancel(ctx), f, t); err != nil {
		e.deps.Logger.Warn("ticket webhook failed", zap.String("form_id", f.ID), zap.Error(err))
	}
}

// DELETE /lnticket/api/v1/tickets/:ticket_id
func (e *Extension) deleteTicket(c *gin.Context) {
	t, err := e.repo.FindTicket(c, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "LNTicket does not exist."})
			return
		}
		handler.WriteError(c, err)
		return
	}
	if err := service.Authorize(handler.CurrentWallet(c).ID, t.WalletID); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your ticket."})
		return
	}
	if err := e.repo.DeleteTicket(c, t.ID); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (e *Extension) ownedForm(c *gin.Context) (*Form, bool) {
	f, err := e.repo.FindForm(c, c.Param("form_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Form does not exist."})
			return nil, false
		}
		handler.WriteError(c, err)
		return nil, false
	}
	if err := service.Authorize(handler.CurrentWallet(c).ID, f.WalletID); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your form."})
		return nil, false
	}
	return f, true
}
