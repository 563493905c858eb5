package handlers

import (
	"time"

	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
)

type orderJSON struct {
	ID            string  `json:"id"`
	DisplayID     string  `json:"display_id"`
	Status        string  `json:"status"`
	IsClosed      bool    `json:"is_closed"`
	CustomerEmail *string `json:"customer_email,omitempty"`

	DeliveryLocationID *string `json:"delivery_location_id,omitempty"`
	DeliveryBuilding   *string `json:"delivery_building,omitempty"`
	CustomAddress      *string `json:"custom_address,omitempty"`

	Subtotal    string `json:"subtotal"`
	Tax         string `json:"tax"`
	DeliveryFee string `json:"delivery_fee"`
	Total       string `json:"total"`

	CancelReason *string `json:"cancel_reason,omitempty"`
	RefundType   string  `json:"refund_type"`
	RefundStatus string  `json:"refund_status"`
	RefundAmount *string `json:"refund_amount,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	OutForDeliveryAt *time.Time `json:"out_for_delivery_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

func orderToJSON(o orders.Order) orderJSON {
	out := orderJSON{
		ID:                 o.ID,
		DisplayID:          o.DisplayID,
		Status:             o.Status,
		IsClosed:           o.IsClosed,
		CustomerEmail:      o.CustomerEmail,
		DeliveryLocationID: o.DeliveryLocationID,
		DeliveryBuilding:   o.DeliveryBuilding,
		CustomAddress:      o.CustomAddress,
		Subtotal:           o.Subtotal.StringFixed(2),
		Tax:                o.Tax.StringFixed(2),
		DeliveryFee:        o.DeliveryFee.StringFixed(2),
		Total:              o.Total.StringFixed(2),
		CancelReason:       o.CancelReason,
		RefundType:         o.RefundType,
		RefundStatus:       o.RefundStatus,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		AcceptedAt:         o.AcceptedAt,
		OutForDeliveryAt:   o.OutForDeliveryAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		ClosedAt:           o.ClosedAt,
	}
	if o.RefundAmount != nil {
		amt := o.RefundAmount.StringFixed(2)
		out.RefundAmount = &amt
	}
	return out
}

type orderItemJSON struct {
	ID        string  `json:"id"`
	MenuName  string  `json:"menu_name"`
	Note      *string `json:"note,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice string  `json:"unit_price"`
	LineTotal string  `json:"line_total"`
}

func itemToJSON(it orders.OrderItem) orderItemJSON {
	return orderItemJSON{
		ID:        it.ID,
		MenuName:  it.MenuName,
		Note:      it.Note,
		Quantity:  it.Quantity,
		UnitPrice: it.UnitPrice.StringFixed(2),
		LineTotal: it.LineTotal.StringFixed(2),
	}
}

func itemsToJSON(items []orders.OrderItem) []orderItemJSON {
	out := make([]orderItemJSON, len(items))
	for i, it := range items {
		out[i] = itemToJSON(it)
	}
	return out
}

type orderEventJSON struct {
	ID         string    `json:"id"`
	ActorType  string    `json:"actor_type"`
	EventType  string    `json:"event_type"`
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   *string   `json:"to_status,omitempty"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func eventToJSON(ev orders.OrderEvent) orderEventJSON {
	out := orderEventJSON{
		ID:         ev.ID,
		ActorType:  ev.ActorType,
		EventType:  ev.EventType,
		FromStatus: ev.FromStatus,
		ToStatus:   ev.ToStatus,
		CreatedAt:  ev.CreatedAt,
	}
	if len(ev.Meta) > 0 {
		out.Meta = ev.Meta
	}
	return out
}

func eventsToJSON(evs []orders.OrderEvent) []orderEventJSON {
	out := make([]orderEventJSON, len(evs))
	for i, ev := range evs {
		out[i] = eventToJSON(ev)
	}
	return out
}

type paymentJSON struct {
	Status            string     `json:"status"`
	Amount            string     `json:"amount"`
	QRPayload         string     `json:"qr_payload,omitempty"`
	ReceiptURL        *string    `json:"receipt_url,omitempty"`
	ReceiptUploadedAt *time.Time `json:"receipt_uploaded_at,omitempty"`
	RejectReason      *string    `json:"reject_reason,omitempty"`
	RejectCount       int        `json:"reject_count"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
}

func paymentToJSON(p payments.OrderPayment) paymentJSON {
	return paymentJSON{
		Status:            p.Status,
		Amount:            p.Amount.StringFixed(2),
		QRPayload:         p.QRPayload,
		ReceiptURL:        p.ReceiptURL,
		ReceiptUploadedAt: p.ReceiptUploadedAt,
		RejectReason:      p.RejectReason,
		RejectCount:       p.RejectCount,
		VerifiedAt:        p.VerifiedAt,
	}
}

type accountJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	IsActive bool   `json:"is_active"`
}

func accountToJSON(a payments.PromptPayAccount) accountJSON {
	return accountJSON{ID: a.ID, Name: a.Name, Phone: a.Phone, IsActive: a.IsActive}
}
