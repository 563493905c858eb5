package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending         = "pending"
	StatusReceiptUploaded = "receipt_uploaded"
	StatusVerified        = "verified"
	StatusRejected        = "rejected"
)

// A single combined payment covers food + delivery. The split types belong to
// the retired two-payment scheme and survive only for old rows.
const (
	TypeCombined = "combined"

	// legacy
	TypeFood     = "food"
	TypeDelivery = "delivery"
)

// MaxRejections caps the rejected-receipt retry loop. Once reached, no further
// receipt upload is accepted for the payment record.
const MaxRejections = 10

type OrderPayment struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	OrderID     string `gorm:"type:char(36);not null;uniqueIndex:ux_order_payments_order_type,priority:1"`
	PaymentType string `gorm:"type:varchar(16);not null;uniqueIndex:ux_order_payments_order_type,priority:2"`

	Amount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Status string          `gorm:"type:varchar(24);not null"`

	QRPayload string  `gorm:"type:varchar(512);not null"`
	AccountID *string `gorm:"type:char(36)"`

	ReceiptURL        *string    `gorm:"type:varchar(512)"`
	ReceiptKey        *string    `gorm:"type:varchar(255)"`
	ReceiptUploadedAt *time.Time `gorm:"type:datetime(3)"`

	VerifiedBy *string    `gorm:"type:char(36)"`
	VerifiedAt *time.Time `gorm:"type:datetime(3)"`

	RejectReason *string `gorm:"type:varchar(255)"`
	RejectCount  int     `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (OrderPayment) TableName() string { return "order_payments" }

type PromptPayAccount struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"type:varchar(128);not null"`
	Phone     string    `gorm:"type:varchar(20);not null"`
	IsActive  bool      `gorm:"not null;default:false;index:ix_promptpay_accounts_active"`
	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (PromptPayAccount) TableName() string { return "promptpay_accounts" }
