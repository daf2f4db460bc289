// Package usermanager lets a user administer sub-users with their own
// wallets and extension switches.
package usermanager

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
)

type Extension struct {
	deps extension.Deps
}

var _ extension.Extension = (*Extension)(nil)

func New(deps extension.Deps) *Extension {
	return &Extension{deps: deps}
}

func (e *Extension) Name() string { return "usermanager" }

// Models is empty: managed users are core users with an admin id.
func (e *Extension) Models() []any { return nil }

func (e *Extension) RegisterRoutes(rg *gin.RouterGroup) {
	api := rg.Group("/api/v1", e.deps.Auth.Require(model.KeyInvoice), e.deps.Auth.RequireCapability(model.CapabilityUserManager))

	api.GET("/users", e.listUsers)
	api.GET("/users/:user_id", e.getUser)
	api.POST("/users", e.createUser)
	api.DELETE("/users/:user_id", e.deleteUser)
	api.GET("/users/:user_id/wallets", e.userWallets)

	api.POST("/extensions", e.setExtension)

	api.GET("/wallets", e.listWallets)
	api.POST("/wallets", e.createWallet)
	api.GET("/wallets/:wallet_id", e.walletTransactions)
	api.DELETE("/wallets/:wallet_id", e.deleteWallet)
}

type managedUser struct {
	*model.User
	Wallets []*model.Wallet `json:"wallets"`
}

// managed loads a user the caller administers. A missing user is NotFound,
// someone else's user is Forbidden.
func (e *Extension) managed(c *gin.Context, userID string) (*model.User, bool) {
	u, err := e.deps.Wallets.GetUser(c, userID)
	if err != nil {
		handler.WriteError(c, err)
		return nil, false
	}
	if err := service.Authorize(handler.CurrentWallet(c).UserID, u.AdminID); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your user."})
		return nil, false
	}
	return u, true
}

func (e *Extension) managedWallet(c *gin.Context) (*model.Wallet, bool) {
	w, err := e.deps.Wallets.GetWallet(c, c.Param("wallet_id"))
	if err != nil {
		handler.WriteError(c, err)
		return nil, false
	}
	if _, ok := e.managed(c, w.UserID); !ok {
		return nil, false
	}
	return w, true
}

// GET /usermanager/api/v1/users
func (e *Extension) listUsers(c *gin.Context) {
	users, err := e.deps.Wallets.ListUsersByAdmin(c, handler.CurrentWallet(c).UserID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// GET /usermanager/api/v1/users/:user_id
func (e *Extension) getUser(c *gin.Context) {
	u, ok := e.managed(c, c.Param("user_id"))
	if !ok {
		return
	}
	wallets, err := e.deps.Wallets.ListUserWallets(c, u.ID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, managedUser{User: u, Wallets: wallets})
}

type CreateUserRequest struct {
	UserName   string `json:"user_name" binding:"required,max=128"`
	WalletName string `json:"wallet_name" binding:"required,max=128"`
	Email      string `json:"email" binding:"omitempty,email"`
}

// POST /usermanager/api/v1/users
func (e *Extension) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	u, w, err := e.deps.Wallets.CreateAccount(c, service.CreateAccountParams{
		UserName:   req.UserName,
		Email:      req.Email,
		AdminID:    handler.CurrentWallet(c).UserID,
		WalletName: req.WalletName,
	})
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       u.ID,
		"name":     u.Name,
		"email":    u.Email,
		"admin_id": u.AdminID,
		"wallets": []gin.H{{
			"id":       w.ID,
			"name":     w.Name,
			"adminkey": w.AdminKey,
			"inkey":    w.InvoiceKey,
		}},
	})
}

// DELETE /usermanager/api/v1/users/:user_id
func (e *Extension) deleteUser(c *gin.Context) {
	u, ok := e.managed(c, c.Param("user_id"))
	if !ok {
		return
	}
	if err := e.deps.Wallets.DeleteUser(c, u.ID); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /usermanager/api/v1/users/:user_id/wallets
func (e *Extension) userWallets(c *gin.Context) {
	u, ok := e.managed(c, c.Param("user_id"))
	if !ok {
		return
	}
	wallets, err := e.deps.Wallets.ListUserWallets(c, u.ID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallets)
}

// POST /usermanager/api/v1/extensions?extension=&userid=&active=
func (e *Extension) setExtension(c *gin.Context) {
	active, err := strconv.ParseBool(c.Query("active"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "active must be a boolean"})
		return
	}
	cp := model.Capability(c.Query("extension"))
	if !cp.Valid() {
		handler.WriteError(c, service.ErrInvalidCapability)
		return
	}
	u, ok := e.managed(c, c.Query("userid"))
	if !ok {
		return
	}
	if err := e.deps.Wallets.SetCapability(c, u.ID, cp, active); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extension": "updated"})
}

// GET /usermanager/api/v1/wallets
func (e *Extension) listWallets(c *gin.Context) {
	users, err := e.deps.Wallets.ListUsersByAdmin(c, handler.CurrentWallet(c).UserID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	wallets, err := e.deps.Wallets.ListWalletsOfUsers(c, ids)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	if wallets == nil {
		wallets = []*model.Wallet{}
	}
	c.JSON(http.StatusOK, wallets)
}

type CreateWalletRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	WalletName string `json:"wallet_name" binding:"required,max=128"`
}

// POST /usermanager/api/v1/wallets
func (e *Extension) createWallet(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	u, ok := e.managed(c, req.UserID)
	if !ok {
		return
	}
	w, err := e.deps.Wallets.CreateWallet(c, u.ID, req.WalletName)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": w.ID, "name": w.Name, "user": w.UserID, "adminkey": w.AdminKey, "inkey": w.InvoiceKey})
}

// GET /usermanager/api/v1/wallets/:wallet_id
func (e *Extension) walletTransactions(c *gin.Context) {
	w, ok := e.managedWallet(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	list, total, err := e.deps.Invoices.ListPayments(c, w.ID, page, size)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "records": list})
}

// DELETE /usermanager/api/v1/wallets/:wallet_id
func (e *Extension) deleteWallet(c *gin.Context) {
	w, ok := e.managedWallet(c)
	if !ok {
		return
	}
	if err := e.deps.Wallets.DeleteWallet(c, w.ID); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
