package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kruasiam.com/app/internal/http/middleware"
	"kruasiam.com/app/internal/http/validation"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/shared/apperr"
)

type AdminAccountHandler struct {
	accounts *payments.Accounts
}

func NewAdminAccountHandler(accounts *payments.Accounts) *AdminAccountHandler {
	return &AdminAccountHandler{accounts: accounts}
}

// GET /api/admin/promptpay-accounts
func (h *AdminAccountHandler) List(c *gin.Context) {
	accs, err := h.accounts.List(c.Request.Context())
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	out := make([]accountJSON, len(accs))
	for i, a := range accs {
		out[i] = accountToJSON(a)
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

type createAccountReq struct {
	Name  string `json:"name" binding:"required,max=128"`
	Phone string `json:"phone" binding:"required,min=9,max=15"`
}

// POST /api/admin/promptpay-accounts
func (h *AdminAccountHandler) Create(c *gin.Context) {
	var req createAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	acc, err := h.accounts.Create(c.Request.Context(), req.Name, req.Phone)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": accountToJSON(acc)})
}

// POST /api/admin/promptpay-accounts/:id/activate
func (h *AdminAccountHandler) Activate(c *gin.Context) {
	if err := h.accounts.Activate(c.Request.Context(), c.Param("id")); err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/admin/promptpay-accounts/:id/deactivate
func (h *AdminAccountHandler) Deactivate(c *gin.Context) {
	if err := h.accounts.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
