package orders

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Wire-visible order status vocabulary. payment_review is the canonical label
// for the post-receipt review state; food_payment_review was a legacy alias and
// is not emitted. The delivery-fee statuses belong to the retired split-payment
// scheme and survive only for old rows.
const (
	StatusProcessing      = "order_processing"
	StatusAwaitingPayment = "awaiting_food_payment"
	StatusPaymentReview   = "payment_review"
	StatusInKitchen       = "order_in_kitchen"
	StatusOutForDelivery  = "order_out_for_delivery"
	StatusDelivered       = "delivered"
	StatusCancelled       = "cancelled"

	// legacy (split food/delivery payments)
	StatusAwaitingDeliveryFee   = "awaiting_delivery_fee_payment"
	StatusDeliveryPaymentReview = "delivery_payment_review"
)

func IsTerminalStatus(s string) bool {
	return s == StatusDelivered || s == StatusCancelled
}

func KnownStatus(s string) bool {
	switch s {
	case StatusProcessing, StatusAwaitingPayment, StatusPaymentReview,
		StatusInKitchen, StatusOutForDelivery, StatusDelivered, StatusCancelled,
		StatusAwaitingDeliveryFee, StatusDeliveryPaymentReview:
		return true
	}
	return false
}

const (
	ActorUser   = "user"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

const (
	RefundNone         = "none"
	RefundFoodOnly     = "food_only"
	RefundDeliveryOnly = "delivery_only"
	RefundFull         = "full"

	RefundStatusNone      = "none"
	RefundStatusRequested = "requested"
	RefundStatusPaid      = "paid"
)

type Order struct {
	ID        string  `gorm:"type:char(36);primaryKey"`
	DisplayID string  `gorm:"type:varchar(16);not null;uniqueIndex:ux_orders_display_id"`
	UserID    *string `gorm:"type:char(36);index:ix_orders_user_id"`

	// Contact captured at checkout; orders may outlive the account (or have none).
	CustomerEmail *string `gorm:"type:varchar(255)"`

	Status   string `gorm:"type:varchar(32);not null;index:ix_orders_status"`
	IsClosed bool   `gorm:"not null;default:false;index:ix_orders_is_closed"`

	// Delivery: either a preset location+building or a free-text address.
	DeliveryLocationID *string `gorm:"type:char(36)"`
	DeliveryBuilding   *string `gorm:"type:varchar(64)"`
	CustomAddress      *string `gorm:"type:varchar(512)"`

	Subtotal    decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Tax         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DeliveryFee decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Total       decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	CancelReason *string `gorm:"type:varchar(255)"`

	RefundType   string           `gorm:"type:varchar(16);not null;default:'none'"`
	RefundStatus string           `gorm:"type:varchar(16);not null;default:'none'"`
	RefundAmount *decimal.Decimal `gorm:"type:decimal(10,2)"`
	RefundReason *string          `gorm:"type:varchar(255)"`

	CreatedAt        time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt        time.Time  `gorm:"type:datetime(3);not null"`
	AcceptedAt       *time.Time `gorm:"type:datetime(3)"`
	OutForDeliveryAt *time.Time `gorm:"type:datetime(3)"`
	DeliveredAt      *time.Time `gorm:"type:datetime(3)"`
	CancelledAt      *time.Time `gorm:"type:datetime(3)"`
	ClosedAt         *time.Time `gorm:"type:datetime(3)"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        string          `gorm:"type:char(36);primaryKey"`
	OrderID   string          `gorm:"type:char(36);not null;index:ix_order_items_order_id"`
	MenuName  string          `gorm:"type:varchar(255);not null"`
	Note      *string         `gorm:"type:varchar(255)"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	LineTotal decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CreatedAt time.Time       `gorm:"type:datetime(3);not null"`
}

func (OrderItem) TableName() string { return "order_items" }

// Event-log vocabulary. Critical events survive order closure; everything else
// is pruned as soon as the order closes.
const (
	EventOrderSubmitted = "order_submitted"
	EventOrderCancelled = "order_cancelled"
	EventOrderDelivered = "order_delivered"
	EventOrderClosed    = "order_closed"

	EventStatusUpdated          = "status_updated"
	EventPaymentRequested       = "payment_requested"
	EventPaymentReceiptUploaded = "payment_receipt_uploaded"
	EventPaymentVerified        = "payment_verified"
	EventPaymentRejected        = "payment_rejected"
	EventCourierAssigned        = "courier_assigned"
	EventCourierTrackingUpdated = "courier_tracking_updated"
)

var criticalEventTypes = map[string]bool{
	EventOrderSubmitted: true,
	EventOrderCancelled: true,
	EventOrderDelivered: true,
	EventOrderClosed:    true,
}

func IsCriticalEvent(eventType string) bool { return criticalEventTypes[eventType] }

// CriticalEventTypes returns the retained-forever event types, for delete
// queries that prune everything else.
func CriticalEventTypes() []string {
	out := make([]string, 0, len(criticalEventTypes))
	for t := range criticalEventTypes {
		out = append(out, t)
	}
	return out
}

type OrderEvent struct {
	ID         string         `gorm:"type:char(36);primaryKey"`
	OrderID    string         `gorm:"type:char(36);not null;index:ix_order_events_order_id"`
	ActorType  string         `gorm:"type:varchar(16);not null"`
	ActorID    *string        `gorm:"type:char(36)"`
	EventType  string         `gorm:"type:varchar(40);not null;index:ix_order_events_type"`
	FromStatus *string        `gorm:"type:varchar(32)"`
	ToStatus   *string        `gorm:"type:varchar(32)"`
	Meta       datatypes.JSON `gorm:"type:json"`
	CreatedAt  time.Time      `gorm:"type:datetime(3);not null"`
}

func (OrderEvent) TableName() string { return "order_events" }
