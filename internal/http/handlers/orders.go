package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kruasiam.com/app/internal/http/middleware"
	"kruasiam.com/app/internal/http/validation"
	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/shared/apperr"
	"kruasiam.com/app/internal/storage"
)

type OrderHandler struct {
	svc             *orders.Service
	repo            *orders.Repo
	engine          *payments.Engine
	store           storage.Storage
	maxReceiptBytes int64
	log             *slog.Logger
}

func NewOrderHandler(svc *orders.Service, repo *orders.Repo, engine *payments.Engine, store storage.Storage, maxReceiptBytes int64, log *slog.Logger) *OrderHandler {
	if maxReceiptBytes <= 0 {
		maxReceiptBytes = 5 << 20
	}
	return &OrderHandler{svc: svc, repo: repo, engine: engine, store: store, maxReceiptBytes: maxReceiptBytes, log: log}
}

type createOrderItemReq struct {
	MenuName  string          `json:"menu_name" binding:"required,max=255"`
	Quantity  int             `json:"quantity" binding:"required,min=1,max=50"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
	Note      string          `json:"note" binding:"max=255"`
}

type createOrderReq struct {
	DeliveryLocationID *string `json:"delivery_location_id"`
	DeliveryBuilding   *string `json:"delivery_building" binding:"omitempty,max=64"`
	CustomAddress      *string `json:"custom_address" binding:"omitempty,max=512"`

	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`

	Items []createOrderItemReq `json:"items" binding:"required,min=1,dive"`
}

// Create opens a new order for the signed-in customer.
// POST /api/orders
func (h *OrderHandler) Create(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	items := make([]orders.CreateItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = orders.CreateItemInput{
			MenuName:  it.MenuName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Note:      it.Note,
		}
	}

	in := orders.CreateInput{
		UserID:             &u.ID,
		DeliveryLocationID: req.DeliveryLocationID,
		DeliveryBuilding:   req.DeliveryBuilding,
		CustomAddress:      req.CustomAddress,
		Tax:                req.Tax,
		DeliveryFee:        req.DeliveryFee,
		Items:              items,
	}
	if u.Email != "" {
		email := u.Email
		in.CustomerEmail = &email
	}

	o, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		var active *orders.ActiveOrderError
		if errors.As(err, &active) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "You already have an active order.",
				"request_id": middleware.GetRequestID(c),
				"active_order": gin.H{
					"display_id": active.DisplayID,
					"status":     active.Status,
				},
			})
			return
		}
		middleware.Fail(c, toAppErr(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": orderToJSON(o)})
}

// List returns the customer's own orders, newest first.
// GET /api/orders?page=&status=
func (h *OrderHandler) List(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	status := c.Query("status")
	if status != "" && !orders.KnownStatus(status) {
		middleware.Fail(c, apperr.InvalidErr("Unknown order status.", map[string]string{"status": "Unknown order status."}))
		return
	}

	params := orders.ListByUserParams{
		UserID:   u.ID,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
		Status:   status,
	}
	res, err := h.repo.ListByUser(c.Request.Context(), params)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}

	out := make([]gin.H, len(res.Items))
	for i, it := range res.Items {
		out[i] = gin.H{"order": orderToJSON(it.Order), "item_count": it.Count}
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": out,
		"total":  res.Total,
		"pages":  pagesFromTotal(res.Total, params.PageSize),
	})
}

// Active returns the customer's open order if one exists, so the client can
// redirect instead of offering checkout.
// GET /api/orders/active
func (h *OrderHandler) Active(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	o, found, err := h.repo.ActiveByUser(c.Request.Context(), u.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"order": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(o)})
}

// Get returns one order with its items, payment state and event history.
// Customers can only read their own orders.
// GET /api/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	_, items, err := h.repo.GetWithItems(ctx, o.ID)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	events, err := h.repo.ListEvents(ctx, o.ID)
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

type cancelOrderReq struct {
	Reason string `json:"reason" binding:"max=255"`
}

// Cancel lets the customer abandon an order inside the cancellation window.
// POST /api/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req cancelOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	actor := orders.Actor{Type: orders.ActorUser, ID: u.ID}
	out, err := h.svc.Cancel(c.Request.Context(), o.ID, actor, orders.CancelInput{Reason: req.Reason})
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToJSON(out)})
}

// UploadReceipt stores a payment slip image and puts the order into review.
// POST /api/orders/:id/receipt (multipart, field "receipt")
func (h *OrderHandler) UploadReceipt(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	o, ok := h.loadOwned(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chk, err := h.engine.CanUploadReceipt(ctx, o.ID, payments.TypeCombined)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	if !chk.Allowed {
		middleware.Fail(c, apperr.ConflictErr("Receipt upload is not allowed: "+chk.Reason))
		return
	}

	fh, err := c.FormFile("receipt")
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("Attach the payment slip as \"receipt\".", nil))
		return
	}
	if fh.Size > h.maxReceiptBytes {
		middleware.Fail(c, apperr.InvalidErr("Receipt image is too large.", nil))
		return
	}
	if !allowedReceiptType(fh.Filename, fh.Header.Get("Content-Type")) {
		middleware.Fail(c, apperr.InvalidErr("Receipt must be a JPEG, PNG or WebP image.", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	defer f.Close()

	put, err := h.store.Put(ctx, f, storage.PutInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
	})
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	actor := orders.Actor{Type: orders.ActorUser, ID: u.ID}
	out, p, err := h.svc.AttachReceipt(ctx, o.ID, actor, put.URL, put.Key)
	if err != nil {
		// the stored object is orphaned; clean it up best-effort
		if delErr := h.store.Delete(ctx, put.Key); delErr != nil {
			h.log.WarnContext(ctx, "orphaned receipt cleanup failed", "key", put.Key, "err", delErr)
		}
		middleware.Fail(c, toAppErr(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   orderToJSON(out),
		"payment": paymentToJSON(p),
	})
}

// loadOwned fetches the :id order and enforces ownership. Staff sessions pass
// regardless of owner.
func (h *OrderHandler) loadOwned(c *gin.Context) (orders.Order, bool) {
	u, _ := middleware.CurrentUser(c)

	o, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return orders.Order{}, false
	}
	if u.IsStaff() {
		return o, true
	}
	if o.UserID == nil || *o.UserID != u.ID {
		// hide existence from non-owners
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return orders.Order{}, false
	}
	return o, true
}

func allowedReceiptType(filename, contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
