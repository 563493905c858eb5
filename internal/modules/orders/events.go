package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event metadata is a tagged union keyed by event type; each kind has a typed
// payload instead of an open map, so readers know exactly what to expect.

type StatusUpdatedMeta struct {
	Reason string `json:"reason,omitempty"`
}

type PaymentRequestedMeta struct {
	Amount    string `json:"amount"`
	QRPayload string `json:"qr_payload"`
	AccountID string `json:"account_id"`
}

type ReceiptUploadedMeta struct {
	ReceiptURL string `json:"receipt_url"`
}

type PaymentVerifiedMeta struct {
	VerifiedBy string `json:"verified_by"`
}

type PaymentRejectedMeta struct {
	Reason      string `json:"reason,omitempty"`
	RejectCount int    `json:"reject_count"`
}

type CancelledMeta struct {
	Reason       string `json:"reason,omitempty"`
	RefundType   string `json:"refund_type"`
	RefundAmount string `json:"refund_amount,omitempty"`
}

type CourierMeta struct {
	CourierName string `json:"courier_name,omitempty"`
	TrackingRef string `json:"tracking_ref,omitempty"`
}

type appendEventInput struct {
	OrderID    string
	ActorType  string
	ActorID    *string
	EventType  string
	FromStatus *string
	ToStatus   *string
	Meta       any // one of the *Meta structs above, or nil
}

func appendEvent(ctx context.Context, tx *gorm.DB, in appendEventInput) error {
	var meta datatypes.JSON
	if in.Meta != nil {
		b, err := json.Marshal(in.Meta)
		if err != nil {
			return err
		}
		meta = datatypes.JSON(b)
	}

	ev := OrderEvent{
		ID:         uuid.NewString(),
		OrderID:    in.OrderID,
		ActorType:  in.ActorType,
		ActorID:    in.ActorID,
		EventType:  in.EventType,
		FromStatus: in.FromStatus,
		ToStatus:   in.ToStatus,
		Meta:       meta,
		CreatedAt:  time.Now(),
	}
	return tx.WithContext(ctx).Create(&ev).Error
}
