package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kruasiam.com/app/internal/http/middleware"
	"kruasiam.com/app/internal/http/validation"
	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/shared/apperr"
)

// Staff capability tokens checked by RequirePermission on the admin routes.
const (
	PermOrderView          = "order:view"
	PermOrderAccept        = "order:accept"
	PermOrderVerifyPayment = "order:verify_payment"
	PermOrderDeliver       = "order:deliver"
	PermOrderCancel        = "order:cancel"
	PermAccountManage      = "account:manage"
)

type AdminOrderHandler struct {
	svc    *orders.Service
	repo   *orders.Repo
	engine *payments.Engine
}

func NewAdminOrderHandler(svc *orders.Service, repo *orders.Repo, engine *payments.Engine) *AdminOrderHandler {
	return &AdminOrderHandler{svc: svc, repo: repo, engine: engine}
}

// List is the staff order queue.
// GET /api/admin/orders?q=&status=&open=&page=
func (h *AdminOrderHandler) List(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !orders.KnownStatus(status) {
		middleware.Fail(c, apperr.InvalidErr("Unknown order status.", map[string]string{"status": "Unknown order status."}))
		return
	}

	params := orders.AdminListParams{
		Q:        c.Query("q"),
		Status:   status,
		Open:     c.Query("open") == "true" || c.Query("open") == "1",
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 30),
	}
	res, err := h.repo.AdminList(c.Request.Context(), params)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	out := make([]orderJSON, len(res.Items))
	for i, o := range res.Items {
		out[i] = orderToJSON(o)
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": out,
		"total":  res.Total,
		"pages":  pagesFromTotal(res.Total, params.PageSize),
	})
}

// Detail returns an order with items, payment record and full event history.
// GET /api/admin/orders/:id
func (h *AdminOrderHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	o, items, events, err := h.repo.AdminGetDetail(ctx, c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	resp := gin.H{
		"order":  orderToJSON(o),
		"items":  itemsToJSON(items),
		"events": eventsToJSON(events),
	}
	if p, err := h.engine.Get(ctx, o.ID, payments.TypeCombined); err == nil {
		resp["payment"] = paymentToJSON(p)
	} else if !errors.Is(err, payments.ErrPaymentNotFound) {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Accept requests payment: generates the PromptPay QR and moves the order to
// awaiting_food_payment.
// POST /api/admin/orders/:id/accept
func (h *AdminOrderHandler) Accept(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	o, err := h.svc.Accept(c.Request.Context(), c.Param("id"), u.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	resp := gin.H{"order": orderToJSON(o)}
	if p, err := h.engine.Get(c.Request.Context(), o.ID, payments.TypeCombined); err == nil {
		resp["payment"] = paymentToJSON(p)
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyPayment confirms the uploaded receipt and sends the order to the kitchen.
// POST /api/admin/orders/:id/verify-payment
func (h *AdminOrderHandler) VerifyPayment(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	o, err := h.svc.VerifyPayment(c.Request.Context(), c.Param("id"), u.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(o)})
}

type rejectPaymentReq struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// RejectPayment sends the receipt back to the customer with a reason.
// POST /api/admin/orders/:id/reject-payment
func (h *AdminOrderHandler) RejectPayment(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req rejectPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	o, err := h.svc.RejectPayment(c.Request.Context(), c.Param("id"), u.ID, req.Reason)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	resp := gin.H{"order": orderToJSON(o)}
	if p, err := h.engine.Get(c.Request.Context(), o.ID, payments.TypeCombined); err == nil {
		resp["payment"] = paymentToJSON(p)
	}
	c.JSON(http.StatusOK, resp)
}

// OutForDelivery hands the order to a courier (courier tracking deployments only).
// POST /api/admin/orders/:id/out-for-delivery
func (h *AdminOrderHandler) OutForDelivery(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	o, err := h.svc.MarkOutForDelivery(c.Request.Context(), c.Param("id"), u.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(o)})
}

// Deliver closes the order as delivered.
// POST /api/admin/orders/:id/deliver
func (h *AdminOrderHandler) Deliver(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	o, err := h.svc.MarkDelivered(c.Request.Context(), c.Param("id"), u.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(o)})
}

type adminCancelReq struct {
	Reason       string           `json:"reason" binding:"max=255"`
	RefundType   string           `json:"refund_type" binding:"omitempty,oneof=none food_only delivery_only full"`
	RefundAmount *decimal.Decimal `json:"refund_amount"`
	RefundReason string           `json:"refund_reason" binding:"max=255"`
}

// Cancel closes any pre-terminal order, optionally requesting a refund.
// POST /api/admin/orders/:id/cancel
func (h *AdminOrderHandler) Cancel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req adminCancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	actor := orders.Actor{Type: orders.ActorAdmin, ID: u.ID}
	o, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actor, orders.CancelInput{
		Reason:       req.Reason,
		RefundType:   req.RefundType,
		RefundAmount: req.RefundAmount,
		RefundReason: req.RefundReason,
	})
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(o)})
}
