package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Engine owns the receipt-verification lifecycle of a payment record:
// pending -> receipt_uploaded -> {verified | rejected}, with rejected ->
// receipt_uploaded re-uploads until MaxRejections. It never touches order
// status; advancing the parent order is the caller's policy.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine { return &Engine{db: db} }

func (e *Engine) Get(ctx context.Context, orderID, paymentType string) (OrderPayment, error) {
	return getPayment(ctx, e.db, orderID, paymentType)
}

// GetTx reads the payment row inside the caller's transaction.
func (e *Engine) GetTx(ctx context.Context, tx *gorm.DB, orderID, paymentType string) (OrderPayment, error) {
	return getPayment(ctx, tx, orderID, paymentType)
}

func getPayment(ctx context.Context, db *gorm.DB, orderID, paymentType string) (OrderPayment, error) {
	var p OrderPayment
	err := db.WithContext(ctx).First(&p, "order_id = ? AND payment_type = ?", orderID, paymentType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OrderPayment{}, ErrPaymentNotFound
	}
	return p, err
}

type UploadCheck struct {
	Allowed bool
	Reason  string
}

// CanUploadReceipt reports whether a (re-)upload is currently accepted.
// Disallowed is an answer, not an error; the error return is for store failures.
func (e *Engine) CanUploadReceipt(ctx context.Context, orderID, paymentType string) (UploadCheck, error) {
	p, err := getPayment(ctx, e.db, orderID, paymentType)
	if errors.Is(err, ErrPaymentNotFound) {
		return UploadCheck{Allowed: false, Reason: "no payment has been requested for this order"}, nil
	}
	if err != nil {
		return UploadCheck{}, err
	}
	return checkUpload(p), nil
}

func checkUpload(p OrderPayment) UploadCheck {
	if p.RejectCount >= MaxRejections {
		return UploadCheck{Allowed: false, Reason: "rejection limit reached, please contact support"}
	}
	switch p.Status {
	case StatusPending, StatusRejected:
		return UploadCheck{Allowed: true}
	case StatusReceiptUploaded:
		return UploadCheck{Allowed: false, Reason: "a receipt is already awaiting review"}
	default:
		return UploadCheck{Allowed: false, Reason: "payment is already verified"}
	}
}

// UpsertPendingTx creates or resets the single payment row for (order, type)
// into pending state. Runs inside the caller's transaction.
func (e *Engine) UpsertPendingTx(ctx context.Context, tx *gorm.DB, orderID, paymentType string, amount decimal.Decimal, qrPayload string, accountID string) (OrderPayment, error) {
	now := time.Now()

	existing, err := getPayment(ctx, tx, orderID, paymentType)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return OrderPayment{}, err
	}
	if err == nil {
		updates := map[string]any{
			"amount":     amount,
			"status":     StatusPending,
			"qr_payload": qrPayload,
			"account_id": accountID,
			"updated_at": now,
		}
		if err := tx.WithContext(ctx).Model(&OrderPayment{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return OrderPayment{}, err
		}
		return getPayment(ctx, tx, orderID, paymentType)
	}

	p := OrderPayment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		PaymentType: paymentType,
		Amount:      amount,
		Status:      StatusPending,
		QRPayload:   qrPayload,
		AccountID:   &accountID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&p).Error; err != nil {
		return OrderPayment{}, err
	}
	return p, nil
}

// MarkReceiptUploadedTx moves the payment to receipt_uploaded, storing the
// receipt location and clearing any prior rejection reason. The rejection
// counter is untouched. The status/counter preconditions are re-checked in the
// UPDATE itself so a concurrent writer loses cleanly instead of overwriting.
func (e *Engine) MarkReceiptUploadedTx(ctx context.Context, tx *gorm.DB, orderID, paymentType, receiptURL, receiptKey string) (OrderPayment, error) {
	p, err := getPayment(ctx, tx, orderID, paymentType)
	if err != nil {
		return OrderPayment{}, err
	}
	if chk := checkUpload(p); !chk.Allowed {
		if p.RejectCount >= MaxRejections {
			return OrderPayment{}, ErrRejectionCap
		}
		return OrderPayment{}, ErrReceiptNotAllowed
	}

	now := time.Now()
	res := tx.WithContext(ctx).Model(&OrderPayment{}).
		Where("id = ? AND status IN ? AND reject_count < ?", p.ID, []string{StatusPending, StatusRejected}, MaxRejections).
		Updates(map[string]any{
			"status":              StatusReceiptUploaded,
			"receipt_url":         receiptURL,
			"receipt_key":         receiptKey,
			"receipt_uploaded_at": now,
			"reject_reason":       nil,
			"updated_at":          now,
		})
	if res.Error != nil {
		return OrderPayment{}, res.Error
	}
	if res.RowsAffected == 0 {
		return OrderPayment{}, ErrReceiptNotAllowed
	}
	return getPayment(ctx, tx, orderID, paymentType)
}

// VerifyTx marks an uploaded receipt as verified, stamping the reviewing staff
// member and the time.
func (e *Engine) VerifyTx(ctx context.Context, tx *gorm.DB, orderID, paymentType, staffID string) (OrderPayment, error) {
	p, err := getPayment(ctx, tx, orderID, paymentType)
	if err != nil {
		return OrderPayment{}, err
	}
	if p.Status != StatusReceiptUploaded {
		return OrderPayment{}, ErrNoReceipt
	}

	now := time.Now()
	res := tx.WithContext(ctx).Model(&OrderPayment{}).
		Where("id = ? AND status = ?", p.ID, StatusReceiptUploaded).
		Updates(map[string]any{
			"status":      StatusVerified,
			"verified_by": staffID,
			"verified_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return OrderPayment{}, res.Error
	}
	if res.RowsAffected == 0 {
		return OrderPayment{}, ErrNoReceipt
	}
	return getPayment(ctx, tx, orderID, paymentType)
}

// RejectTx sends an uploaded receipt back to the customer. The counter
// increment happens in the store (reject_count = reject_count + 1) so two
// concurrent rejections can never collapse into one.
func (e *Engine) RejectTx(ctx context.Context, tx *gorm.DB, orderID, paymentType, reason string) (OrderPayment, error) {
	p, err := getPayment(ctx, tx, orderID, paymentType)
	if err != nil {
		return OrderPayment{}, err
	}
	if p.Status != StatusReceiptUploaded {
		return OrderPayment{}, ErrNoReceipt
	}

	now := time.Now()
	updates := map[string]any{
		"status":       StatusRejected,
		"reject_count": gorm.Expr("reject_count + 1"),
		"updated_at":   now,
	}
	if reason != "" {
		updates["reject_reason"] = reason
	}
	res := tx.WithContext(ctx).Model(&OrderPayment{}).
		Where("id = ? AND status = ?", p.ID, StatusReceiptUploaded).
		Updates(updates)
	if res.Error != nil {
		return OrderPayment{}, res.Error
	}
	if res.RowsAffected == 0 {
		return OrderPayment{}, ErrNoReceipt
	}
	return getPayment(ctx, tx, orderID, paymentType)
}
