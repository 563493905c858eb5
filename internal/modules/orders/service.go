package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/realtime"
)

// Broadcaster fans committed lifecycle changes out to live viewers. It is
// called only after the transaction commits; failures stay inside it.
type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event)
}

// TransientCleaner prunes the non-critical event history of a closed order.
type TransientCleaner interface {
	CleanupTransientEvents(ctx context.Context, orderID string) error
}

// Notifier sends customer emails. Best-effort, post-commit.
type Notifier interface {
	PaymentVerified(ctx context.Context, to, displayID, total string) error
	OrderCancelled(ctx context.Context, to, displayID, reason string) error
}

type Actor struct {
	Type string // ActorUser | ActorAdmin | ActorSystem
	ID   string
}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

type Service struct {
	db             *gorm.DB
	log            *slog.Logger
	engine         *payments.Engine
	accounts       *payments.Accounts
	broadcast      Broadcaster
	cleaner        TransientCleaner
	notify         Notifier
	courierEnabled bool
}

func NewService(db *gorm.DB, log *slog.Logger, engine *payments.Engine, accounts *payments.Accounts, broadcast Broadcaster, cleaner TransientCleaner, notify Notifier, courierEnabled bool) *Service {
	return &Service{
		db:             db,
		log:            log,
		engine:         engine,
		accounts:       accounts,
		broadcast:      broadcast,
		cleaner:        cleaner,
		notify:         notify,
		courierEnabled: courierEnabled,
	}
}

type CreateItemInput struct {
	MenuName  string
	Quantity  int
	UnitPrice decimal.Decimal
	Note      string
}

type CreateInput struct {
	UserID        *string
	CustomerEmail *string

	DeliveryLocationID *string
	DeliveryBuilding   *string
	CustomAddress      *string

	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal

	Items []CreateItemInput
}

// Create opens a new order. The one-active-order-per-customer rule is
// re-validated inside the same transaction as the insert, so two concurrent
// submissions cannot both pass the guard.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}

	subtotal := decimal.Zero
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return Order{}, ErrEmptyOrder
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	total := subtotal.Add(in.Tax).Add(in.DeliveryFee)

	var o Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// admission guard: one non-closed order per known customer
		if in.UserID != nil {
			var open Order
			err := tx.WithContext(ctx).
				First(&open, "user_id = ? AND is_closed = ?", *in.UserID, false).Error
			if err == nil {
				return &ActiveOrderError{DisplayID: open.DisplayID, Status: open.Status}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		now := time.Now()
		o = Order{
			ID:                 uuid.NewString(),
			DisplayID:          newDisplayID(),
			UserID:             in.UserID,
			CustomerEmail:      in.CustomerEmail,
			Status:             StatusProcessing,
			DeliveryLocationID: in.DeliveryLocationID,
			DeliveryBuilding:   in.DeliveryBuilding,
			CustomAddress:      in.CustomAddress,
			Subtotal:           subtotal,
			Tax:                in.Tax,
			DeliveryFee:        in.DeliveryFee,
			Total:              total,
			RefundType:         RefundNone,
			RefundStatus:       RefundStatusNone,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.WithContext(ctx).Create(&o).Error; err != nil {
			if isDup(err) {
				// display id collision; vanishingly rare, retry with a fresh one
				o.DisplayID = newDisplayID()
				if err := tx.WithContext(ctx).Create(&o).Error; err != nil {
					return err
				}
			} else {
				return err
			}
		}

		for _, it := range in.Items {
			item := OrderItem{
				ID:        uuid.NewString(),
				OrderID:   o.ID,
				MenuName:  strings.TrimSpace(it.MenuName),
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
				CreatedAt: now,
			}
			if n := strings.TrimSpace(it.Note); n != "" {
				item.Note = &n
			}
			if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
				return err
			}
		}

		return appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: ActorUser,
			ActorID:   in.UserID,
			EventType: EventOrderSubmitted,
			ToStatus:  ptr(StatusProcessing),
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publish(ctx, realtime.KindOrderSubmitted, o, "", StatusProcessing, ActorUser)
	return o, nil
}

// Accept moves order_processing -> awaiting_food_payment: generates the
// PromptPay QR payload against the single active receiving account and upserts
// the combined payment row in pending state.
func (s *Service) Accept(ctx context.Context, orderID, staffID string) (Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusProcessing {
			return ErrInvalidTransition
		}

		acct, err := s.accounts.ActiveTx(ctx, tx)
		if err != nil {
			return err
		}
		payload := payments.QRPayload(acct.Phone, o.Total)

		if _, err := s.engine.UpsertPendingTx(ctx, tx, o.ID, payments.TypeCombined, o.Total, payload, acct.ID); err != nil {
			return err
		}

		now := time.Now()
		if err := s.updateStatus(ctx, tx, &o, StatusAwaitingPayment, map[string]any{
			"accepted_at": now,
		}); err != nil {
			return err
		}

		staff := Actor{Type: ActorAdmin, ID: staffID}
		if err := appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: staff.Type,
			ActorID:   staff.idPtr(),
			EventType: EventPaymentRequested,
			Meta: PaymentRequestedMeta{
				Amount:    o.Total.StringFixed(2),
				QRPayload: payload,
				AccountID: acct.ID,
			},
		}); err != nil {
			return err
		}
		return s.appendStatusUpdated(ctx, tx, o, StatusProcessing, staff, "")
	})
	if err != nil {
		return Order{}, err
	}

	s.publish(ctx, realtime.KindPaymentRequested, o, StatusProcessing, o.Status, ActorAdmin)
	s.publish(ctx, realtime.KindStatusChanged, o, StatusProcessing, o.Status, ActorAdmin)
	return o, nil
}

// AttachReceipt records an uploaded receipt and moves the order into
// payment_review. The payment engine enforces the rejection cap and the
// pending/rejected precondition.
func (s *Service) AttachReceipt(ctx context.Context, orderID string, actor Actor, receiptURL, receiptKey string) (Order, payments.OrderPayment, error) {
	var o Order
	var p payments.OrderPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusAwaitingPayment {
			return ErrInvalidTransition
		}

		p, err = s.engine.MarkReceiptUploadedTx(ctx, tx, o.ID, payments.TypeCombined, receiptURL, receiptKey)
		if err != nil {
			return err
		}

		if err := s.updateStatus(ctx, tx, &o, StatusPaymentReview, nil); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: actor.Type,
			ActorID:   actor.idPtr(),
			EventType: EventPaymentReceiptUploaded,
			Meta:      ReceiptUploadedMeta{ReceiptURL: receiptURL},
		}); err != nil {
			return err
		}
		return s.appendStatusUpdated(ctx, tx, o, StatusAwaitingPayment, actor, "")
	})
	if err != nil {
		return Order{}, payments.OrderPayment{}, err
	}

	s.publish(ctx, realtime.KindReceiptUploaded, o, StatusAwaitingPayment, o.Status, actor.Type)
	s.publish(ctx, realtime.KindStatusChanged, o, StatusAwaitingPayment, o.Status, actor.Type)
	return o, p, nil
}

// VerifyPayment confirms the uploaded receipt and sends the order to the
// kitchen. Advancing the order status here (not in the payment engine) keeps
// the engine decoupled from order policy.
func (s *Service) VerifyPayment(ctx context.Context, orderID, staffID string) (Order, error) {
	var o Order
	staff := Actor{Type: ActorAdmin, ID: staffID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusPaymentReview {
			return ErrInvalidTransition
		}

		if _, err := s.engine.VerifyTx(ctx, tx, o.ID, payments.TypeCombined, staffID); err != nil {
			return err
		}
		if err := s.updateStatus(ctx, tx, &o, StatusInKitchen, nil); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: staff.Type,
			ActorID:   staff.idPtr(),
			EventType: EventPaymentVerified,
			Meta:      PaymentVerifiedMeta{VerifiedBy: staffID},
		}); err != nil {
			return err
		}
		return s.appendStatusUpdated(ctx, tx, o, StatusPaymentReview, staff, "")
	})
	if err != nil {
		return Order{}, err
	}

	if s.notify != nil && o.CustomerEmail != nil {
		if err := s.notify.PaymentVerified(ctx, *o.CustomerEmail, o.DisplayID, o.Total.StringFixed(2)); err != nil {
			s.log.ErrorContext(ctx, "payment verified email failed", "order_id", o.ID, "err", err)
		}
	}
	s.publish(ctx, realtime.KindPaymentVerified, o, StatusPaymentReview, o.Status, ActorAdmin)
	s.publish(ctx, realtime.KindStatusChanged, o, StatusPaymentReview, o.Status, ActorAdmin)
	return o, nil
}

// RejectPayment sends a receipt back to the customer and returns the order to
// awaiting_food_payment. The engine increments the rejection counter
// atomically in the store.
func (s *Service) RejectPayment(ctx context.Context, orderID, staffID, reason string) (Order, error) {
	var o Order
	var p payments.OrderPayment
	staff := Actor{Type: ActorAdmin, ID: staffID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusPaymentReview {
			return ErrInvalidTransition
		}

		p, err = s.engine.RejectTx(ctx, tx, o.ID, payments.TypeCombined, reason)
		if err != nil {
			return err
		}
		if err := s.updateStatus(ctx, tx, &o, StatusAwaitingPayment, nil); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: staff.Type,
			ActorID:   staff.idPtr(),
			EventType: EventPaymentRejected,
			Meta:      PaymentRejectedMeta{Reason: reason, RejectCount: p.RejectCount},
		}); err != nil {
			return err
		}
		return s.appendStatusUpdated(ctx, tx, o, StatusPaymentReview, staff, reason)
	})
	if err != nil {
		return Order{}, err
	}

	s.publish(ctx, realtime.KindPaymentRejected, o, StatusPaymentReview, o.Status, ActorAdmin)
	s.publish(ctx, realtime.KindStatusChanged, o, StatusPaymentReview, o.Status, ActorAdmin)
	return o, nil
}

// MarkOutForDelivery hands the order to a courier. Only available when the
// deployment enables courier tracking.
func (s *Service) MarkOutForDelivery(ctx context.Context, orderID, staffID string) (Order, error) {
	if !s.courierEnabled {
		return Order{}, ErrCourierDisabled
	}

	var o Order
	staff := Actor{Type: ActorAdmin, ID: staffID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusInKitchen {
			return ErrInvalidTransition
		}

		now := time.Now()
		if err := s.updateStatus(ctx, tx, &o, StatusOutForDelivery, map[string]any{
			"out_for_delivery_at": now,
		}); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, appendEventInput{
			OrderID:   o.ID,
			ActorType: staff.Type,
			ActorID:   staff.idPtr(),
			EventType: EventCourierAssigned,
			Meta:      CourierMeta{},
		}); err != nil {
			return err
		}
		return s.appendStatusUpdated(ctx, tx, o, StatusInKitchen, staff, "")
	})
	if err != nil {
		return Order{}, err
	}

	s.publish(ctx, realtime.KindCourierAssigned, o, StatusInKitchen, o.Status, ActorAdmin)
	s.publish(ctx, realtime.KindStatusChanged, o, StatusInKitchen, o.Status, ActorAdmin)
	return o, nil
}

// MarkDelivered closes the order as delivered and prunes its transient events.
func (s *Service) MarkDelivered(ctx context.Context, orderID, staffID string) (Order, error) {
	var o Order
	var from string
	staff := Actor{Type: ActorAdmin, ID: staffID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		if o.Status != StatusOutForDelivery && o.Status != StatusInKitchen {
			return ErrInvalidTransition
		}
		from = o.Status

		now := time.Now()
		return s.closeOrder(ctx, tx, &o, staff, closeInput{
			toStatus:      StatusDelivered,
			updates:       map[string]any{"delivered_at": now},
			criticalEvent: EventOrderDelivered,
			meta:          nil,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.afterClose(ctx, o, from, ActorAdmin, realtime.KindOrderDelivered)
	return o, nil
}

type CancelInput struct {
	Reason       string
	RefundType   string // none|food_only|delivery_only|full (staff only)
	RefundAmount *decimal.Decimal
	RefundReason string
}

// Cancel closes the order as cancelled. Customers may cancel only while the
// order is still processing, or awaiting payment with no receipt uploaded yet;
// staff may cancel any pre-terminal order.
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor, in CancelInput) (Order, error) {
	var o Order
	var from string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		o, err = loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.IsClosed {
			return ErrOrderClosed
		}
		from = o.Status

		if actor.Type == ActorUser {
			if err := s.checkCancelWindow(ctx, tx, o); err != nil {
				return err
			}
		}

		now := time.Now()
		updates := map[string]any{"cancelled_at": now}
		if r := strings.TrimSpace(in.Reason); r != "" {
			updates["cancel_reason"] = r
		}

		refundType := in.RefundType
		if refundType == "" {
			refundType = RefundNone
		}
		meta := CancelledMeta{Reason: strings.TrimSpace(in.Reason), RefundType: refundType}
		if refundType != RefundNone {
			amount := refundAmountFor(o, refundType, in.RefundAmount)
			updates["refund_type"] = refundType
			updates["refund_status"] = RefundStatusRequested
			updates["refund_amount"] = amount
			if rr := strings.TrimSpace(in.RefundReason); rr != "" {
				updates["refund_reason"] = rr
			}
			meta.RefundAmount = amount.StringFixed(2)
		}

		return s.closeOrder(ctx, tx, &o, actor, closeInput{
			toStatus:      StatusCancelled,
			updates:       updates,
			criticalEvent: EventOrderCancelled,
			meta:          meta,
		})
	})
	if err != nil {
		return Order{}, err
	}

	if s.notify != nil && o.CustomerEmail != nil && actor.Type != ActorUser {
		if err := s.notify.OrderCancelled(ctx, *o.CustomerEmail, o.DisplayID, in.Reason); err != nil {
			s.log.ErrorContext(ctx, "order cancelled email failed", "order_id", o.ID, "err", err)
		}
	}
	s.afterClose(ctx, o, from, actor.Type, realtime.KindOrderCancelled)
	return o, nil
}

// checkCancelWindow enforces the customer cancellation window in every
// environment; there is no development-mode bypass.
func (s *Service) checkCancelWindow(ctx context.Context, tx *gorm.DB, o Order) error {
	switch o.Status {
	case StatusProcessing:
		return nil
	case StatusAwaitingPayment:
		p, err := s.engine.GetTx(ctx, tx, o.ID, payments.TypeCombined)
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.Status == payments.StatusPending && p.ReceiptURL == nil {
			return nil
		}
		return ErrCancelWindow
	default:
		return ErrCancelWindow
	}
}

type closeInput struct {
	toStatus      string
	updates       map[string]any
	criticalEvent string
	meta          any
}

// closeOrder applies a terminal transition: status + isClosed flip, the
// status_updated event, the corresponding critical event, and order_closed.
func (s *Service) closeOrder(ctx context.Context, tx *gorm.DB, o *Order, actor Actor, in closeInput) error {
	from := o.Status
	now := time.Now()

	updates := in.updates
	if updates == nil {
		updates = map[string]any{}
	}
	updates["is_closed"] = true
	updates["closed_at"] = now

	if err := s.updateStatus(ctx, tx, o, in.toStatus, updates); err != nil {
		return err
	}
	if err := s.appendStatusUpdated(ctx, tx, *o, from, actor, ""); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, appendEventInput{
		OrderID:    o.ID,
		ActorType:  actor.Type,
		ActorID:    actor.idPtr(),
		EventType:  in.criticalEvent,
		FromStatus: &from,
		ToStatus:   &in.toStatus,
		Meta:       in.meta,
	}); err != nil {
		return err
	}
	return appendEvent(ctx, tx, appendEventInput{
		OrderID:   o.ID,
		ActorType: ActorSystem,
		EventType: EventOrderClosed,
		ToStatus:  &in.toStatus,
	})
}

func (s *Service) afterClose(ctx context.Context, o Order, from, actorType string, criticalKind realtime.Kind) {
	if s.cleaner != nil {
		if err := s.cleaner.CleanupTransientEvents(ctx, o.ID); err != nil {
			s.log.ErrorContext(ctx, "transient event cleanup failed", "order_id", o.ID, "err", err)
		}
	}
	s.publish(ctx, realtime.KindStatusChanged, o, from, o.Status, actorType)
	s.publish(ctx, criticalKind, o, from, o.Status, actorType)
	s.publish(ctx, realtime.KindOrderClosed, o, from, o.Status, actorType)
}

// updateStatus writes the new status conditionally on the status that was
// read. A concurrent writer makes the update match zero rows, which surfaces
// as ErrConflict instead of silently overwriting.
func (s *Service) updateStatus(ctx context.Context, tx *gorm.DB, o *Order, to string, extra map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	o.Status = to
	if closed, ok := updates["is_closed"].(bool); ok {
		o.IsClosed = closed
	}
	return nil
}

func (s *Service) appendStatusUpdated(ctx context.Context, tx *gorm.DB, o Order, from string, actor Actor, reason string) error {
	return appendEvent(ctx, tx, appendEventInput{
		OrderID:    o.ID,
		ActorType:  actor.Type,
		ActorID:    actor.idPtr(),
		EventType:  EventStatusUpdated,
		FromStatus: &from,
		ToStatus:   &o.Status,
		Meta:       StatusUpdatedMeta{Reason: reason},
	})
}

func (s *Service) publish(ctx context.Context, kind realtime.Kind, o Order, from, to, actorType string) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.Publish(ctx, realtime.Event{
		EventID:    uuid.NewString(),
		Kind:       kind,
		OrderID:    o.ID,
		DisplayID:  o.DisplayID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		OccurredAt: time.Now(),
	})
}

func loadOrder(ctx context.Context, tx *gorm.DB, orderID string) (Order, error) {
	var o Order
	err := tx.WithContext(ctx).First(&o, "id = ?", orderID).Error
	return o, err
}

func refundAmountFor(o Order, refundType string, requested *decimal.Decimal) decimal.Decimal {
	if requested != nil && !requested.IsNegative() {
		return requested.Round(2)
	}
	switch refundType {
	case RefundFoodOnly:
		return o.Subtotal.Add(o.Tax)
	case RefundDeliveryOnly:
		return o.DeliveryFee
	default:
		return o.Total
	}
}

func newDisplayID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "KS-" + raw[:8]
}

func ptr(s string) *string { return &s }

func isDup(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
