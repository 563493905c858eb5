package orders_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/modules/cleanup"
	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/realtime"
	"kruasiam.com/app/internal/storage"
	"kruasiam.com/app/internal/testdb"
)

type broadcastRec struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *broadcastRec) Publish(_ context.Context, ev realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *broadcastRec) kinds() []realtime.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]realtime.Kind, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Kind
	}
	return out
}

func (b *broadcastRec) has(kind realtime.Kind) bool {
	for _, k := range b.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type notifyRec struct {
	verified  []string
	cancelled []string
}

func (n *notifyRec) PaymentVerified(_ context.Context, to, _, _ string) error {
	n.verified = append(n.verified, to)
	return nil
}

func (n *notifyRec) OrderCancelled(_ context.Context, to, _, _ string) error {
	n.cancelled = append(n.cancelled, to)
	return nil
}

type nullStore struct{}

func (nullStore) Put(_ context.Context, _ io.Reader, _ storage.PutInput) (storage.PutResult, error) {
	return storage.PutResult{}, nil
}
func (nullStore) Delete(_ context.Context, _ string) error { return nil }

type fixture struct {
	db        *gorm.DB
	svc       *orders.Service
	engine    *payments.Engine
	accounts  *payments.Accounts
	broadcast *broadcastRec
	notify    *notifyRec
}

func newFixture(t *testing.T, courierEnabled bool) *fixture {
	t.Helper()

	db := testdb.Open(t,
		&orders.Order{}, &orders.OrderItem{}, &orders.OrderEvent{},
		&payments.OrderPayment{}, &payments.PromptPayAccount{},
	)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := payments.NewEngine(db)
	accounts := payments.NewAccounts(db)
	broadcast := &broadcastRec{}
	notify := &notifyRec{}
	cleaner := cleanup.NewService(db, nullStore{}, log, 0, 0)

	acc, err := accounts.Create(context.Background(), "Krua Siam", "0812345678")
	if err != nil {
		t.Fatal(err)
	}
	if err := accounts.Activate(context.Background(), acc.ID); err != nil {
		t.Fatal(err)
	}

	svc := orders.NewService(db, log, engine, accounts, broadcast, cleaner, notify, courierEnabled)
	return &fixture{db: db, svc: svc, engine: engine, accounts: accounts, broadcast: broadcast, notify: notify}
}

func createInput(userID string) orders.CreateInput {
	email := userID + "@example.com"
	return orders.CreateInput{
		UserID:        &userID,
		CustomerEmail: &email,
		Tax:           decimal.RequireFromString("17.50"),
		DeliveryFee:   decimal.NewFromInt(30),
		Items: []orders.CreateItemInput{
			{MenuName: "Pad Krapow Moo", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
			{MenuName: "Thai Iced Tea", Quantity: 1, UnitPrice: decimal.NewFromInt(50), Note: "less sweet"},
		},
	}
}

func (f *fixture) create(t *testing.T, userID string) orders.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), createInput(userID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (f *fixture) toReview(t *testing.T, userID string) orders.Order {
	t.Helper()
	ctx := context.Background()
	o := f.create(t, userID)
	if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	o2, _, err := f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: userID}, "http://r/slip.jpg", "receipts/slip.jpg")
	if err != nil {
		t.Fatalf("attach receipt: %v", err)
	}
	return o2
}

func (f *fixture) eventTypes(t *testing.T, orderID string) []string {
	t.Helper()
	var evs []orders.OrderEvent
	if err := f.db.Order("created_at ASC").Find(&evs, "order_id = ?", orderID).Error; err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventType
	}
	return out
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("opens the order in processing with totals and a display id", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		if o.Status != orders.StatusProcessing {
			t.Fatalf("status = %s, want %s", o.Status, orders.StatusProcessing)
		}
		if o.IsClosed {
			t.Fatal("new order must not be closed")
		}
		if !strings.HasPrefix(o.DisplayID, "KS-") {
			t.Fatalf("display id = %s", o.DisplayID)
		}
		if !o.Subtotal.Equal(decimal.NewFromInt(250)) {
			t.Fatalf("subtotal = %s, want 250", o.Subtotal)
		}
		if !o.Total.Equal(decimal.RequireFromString("297.50")) {
			t.Fatalf("total = %s, want 297.50", o.Total)
		}

		got := f.eventTypes(t, o.ID)
		if len(got) != 1 || got[0] != orders.EventOrderSubmitted {
			t.Fatalf("events = %v, want [order_submitted]", got)
		}
		if !f.broadcast.has(realtime.KindOrderSubmitted) {
			t.Fatal("order.submitted not broadcast")
		}
	})

	t.Run("rejects an empty order", func(t *testing.T) {
		f := newFixture(t, false)
		in := createInput("u1")
		in.Items = nil
		if _, err := f.svc.Create(ctx, in); !errors.Is(err, orders.ErrEmptyOrder) {
			t.Fatalf("got %v, want ErrEmptyOrder", err)
		}
	})

	t.Run("blocks a second order while one is open", func(t *testing.T) {
		f := newFixture(t, false)
		first := f.create(t, "u1")

		_, err := f.svc.Create(ctx, createInput("u1"))
		var active *orders.ActiveOrderError
		if !errors.As(err, &active) {
			t.Fatalf("got %v, want ActiveOrderError", err)
		}
		if active.DisplayID != first.DisplayID {
			t.Fatalf("blocking order = %s, want %s", active.DisplayID, first.DisplayID)
		}
		if active.Status != orders.StatusProcessing {
			t.Fatalf("blocking status = %s", active.Status)
		}
	})

	t.Run("admits a new order once the previous one closes", func(t *testing.T) {
		f := newFixture(t, false)
		first := f.create(t, "u1")

		if _, err := f.svc.Cancel(ctx, first.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, orders.CancelInput{Reason: "changed my mind"}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := f.svc.Create(ctx, createInput("u1")); err != nil {
			t.Fatalf("create after close: %v", err)
		}
	})

	t.Run("different customers are admitted independently", func(t *testing.T) {
		f := newFixture(t, false)
		f.create(t, "u1")
		f.create(t, "u2")
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to awaiting payment with a pending QR payment", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		o2, err := f.svc.Accept(ctx, o.ID, "staff-1")
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if o2.Status != orders.StatusAwaitingPayment {
			t.Fatalf("status = %s", o2.Status)
		}

		var fresh orders.Order
		if err := f.db.First(&fresh, "id = ?", o.ID).Error; err != nil {
			t.Fatal(err)
		}
		if fresh.AcceptedAt == nil {
			t.Fatal("accepted_at not stamped")
		}

		p, err := f.engine.Get(ctx, o.ID, payments.TypeCombined)
		if err != nil {
			t.Fatalf("payment row: %v", err)
		}
		if p.Status != payments.StatusPending {
			t.Fatalf("payment status = %s", p.Status)
		}
		if !p.Amount.Equal(o.Total) {
			t.Fatalf("payment amount = %s, want %s", p.Amount, o.Total)
		}
		if !strings.Contains(p.QRPayload, "A000000677010111") {
			t.Fatalf("qr payload missing PromptPay AID: %s", p.QRPayload)
		}
		if !f.broadcast.has(realtime.KindPaymentRequested) {
			t.Fatal("payment.requested not broadcast")
		}
	})

	t.Run("requires an active receiving account", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		accs, err := f.accounts.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range accs {
			if err := f.accounts.Deactivate(ctx, a.ID); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); !errors.Is(err, payments.ErrNoActiveAccount) {
			t.Fatalf("got %v, want ErrNoActiveAccount", err)
		}
	})

	t.Run("only processing orders can be accepted", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")
		if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); !errors.Is(err, orders.ErrInvalidTransition) {
			t.Fatalf("got %v, want ErrInvalidTransition", err)
		}
	})
}

func TestPaymentReview(t *testing.T) {
	ctx := context.Background()

	t.Run("verified receipt sends the order to the kitchen and emails the customer", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")
		if o.Status != orders.StatusPaymentReview {
			t.Fatalf("status = %s", o.Status)
		}

		o2, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if o2.Status != orders.StatusInKitchen {
			t.Fatalf("status = %s, want %s", o2.Status, orders.StatusInKitchen)
		}
		if len(f.notify.verified) != 1 || f.notify.verified[0] != "u1@example.com" {
			t.Fatalf("verification email = %v", f.notify.verified)
		}
		if !f.broadcast.has(realtime.KindPaymentVerified) {
			t.Fatal("payment.verified not broadcast")
		}
	})

	t.Run("rejected receipt returns the order to awaiting payment", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")

		o2, err := f.svc.RejectPayment(ctx, o.ID, "staff-1", "illegible slip")
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if o2.Status != orders.StatusAwaitingPayment {
			t.Fatalf("status = %s", o2.Status)
		}

		p, err := f.engine.Get(ctx, o.ID, payments.TypeCombined)
		if err != nil {
			t.Fatal(err)
		}
		if p.Status != payments.StatusRejected || p.RejectCount != 1 {
			t.Fatalf("payment = %s count=%d", p.Status, p.RejectCount)
		}

		// the customer can go around the loop again
		o3, _, err := f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, "http://r/slip2.jpg", "receipts/slip2.jpg")
		if err != nil {
			t.Fatalf("re-upload: %v", err)
		}
		if o3.Status != orders.StatusPaymentReview {
			t.Fatalf("status = %s", o3.Status)
		}
		if !f.broadcast.has(realtime.KindPaymentRejected) {
			t.Fatal("payment.rejected not broadcast")
		}
	})

	t.Run("receipt upload outside awaiting payment is refused", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		_, _, err := f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, "u", "k")
		if !errors.Is(err, orders.ErrInvalidTransition) {
			t.Fatalf("got %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("verify outside review is refused", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); !errors.Is(err, orders.ErrInvalidTransition) {
			t.Fatalf("got %v, want ErrInvalidTransition", err)
		}
	})
}

func TestDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("kitchen to delivered without courier tracking", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")
		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}

		o2, err := f.svc.MarkDelivered(ctx, o.ID, "staff-1")
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if o2.Status != orders.StatusDelivered || !o2.IsClosed {
			t.Fatalf("order = %s closed=%v", o2.Status, o2.IsClosed)
		}

		var fresh orders.Order
		if err := f.db.First(&fresh, "id = ?", o.ID).Error; err != nil {
			t.Fatal(err)
		}
		if fresh.DeliveredAt == nil || fresh.ClosedAt == nil {
			t.Fatal("delivered_at / closed_at not stamped")
		}
	})

	t.Run("courier tracking gates out-for-delivery", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")
		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}

		if _, err := f.svc.MarkOutForDelivery(ctx, o.ID, "staff-1"); !errors.Is(err, orders.ErrCourierDisabled) {
			t.Fatalf("got %v, want ErrCourierDisabled", err)
		}
	})

	t.Run("with courier tracking the order passes through out-for-delivery", func(t *testing.T) {
		f := newFixture(t, true)
		o := f.toReview(t, "u1")
		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}

		o2, err := f.svc.MarkOutForDelivery(ctx, o.ID, "staff-1")
		if err != nil {
			t.Fatalf("out for delivery: %v", err)
		}
		if o2.Status != orders.StatusOutForDelivery {
			t.Fatalf("status = %s", o2.Status)
		}
		if !f.broadcast.has(realtime.KindCourierAssigned) {
			t.Fatal("courier.assigned not broadcast")
		}

		o3, err := f.svc.MarkDelivered(ctx, o.ID, "staff-1")
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if o3.Status != orders.StatusDelivered || !o3.IsClosed {
			t.Fatalf("order = %s closed=%v", o3.Status, o3.IsClosed)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	customer := orders.Actor{Type: orders.ActorUser, ID: "u1"}
	staff := orders.Actor{Type: orders.ActorAdmin, ID: "staff-1"}

	t.Run("customer cancels while processing", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")

		o2, err := f.svc.Cancel(ctx, o.ID, customer, orders.CancelInput{Reason: "ordered twice"})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if o2.Status != orders.StatusCancelled || !o2.IsClosed {
			t.Fatalf("order = %s closed=%v", o2.Status, o2.IsClosed)
		}
		// customer-initiated cancellations do not email the customer
		if len(f.notify.cancelled) != 0 {
			t.Fatalf("unexpected cancellation email: %v", f.notify.cancelled)
		}
	})

	t.Run("customer cancels while awaiting payment before uploading a receipt", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")
		if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.Cancel(ctx, o.ID, customer, orders.CancelInput{}); err != nil {
			t.Fatalf("cancel in window: %v", err)
		}
	})

	t.Run("customer cannot cancel after uploading a receipt", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")

		_, err := f.svc.Cancel(ctx, o.ID, customer, orders.CancelInput{})
		if !errors.Is(err, orders.ErrCancelWindow) {
			t.Fatalf("got %v, want ErrCancelWindow", err)
		}
	})

	t.Run("staff cancels any open order with a refund and the customer is emailed", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")

		o2, err := f.svc.Cancel(ctx, o.ID, staff, orders.CancelInput{
			Reason:       "kitchen closed early",
			RefundType:   orders.RefundFull,
			RefundReason: "paid but not cooked",
		})
		if err != nil {
			t.Fatalf("staff cancel: %v", err)
		}
		if o2.Status != orders.StatusCancelled || !o2.IsClosed {
			t.Fatalf("order = %s closed=%v", o2.Status, o2.IsClosed)
		}

		var fresh orders.Order
		if err := f.db.First(&fresh, "id = ?", o.ID).Error; err != nil {
			t.Fatal(err)
		}
		if fresh.RefundType != orders.RefundFull || fresh.RefundStatus != orders.RefundStatusRequested {
			t.Fatalf("refund = %s/%s", fresh.RefundType, fresh.RefundStatus)
		}
		if fresh.RefundAmount == nil || !fresh.RefundAmount.Equal(o.Total) {
			t.Fatalf("refund amount = %v, want %s", fresh.RefundAmount, o.Total)
		}
		if len(f.notify.cancelled) != 1 {
			t.Fatalf("cancellation emails = %v", f.notify.cancelled)
		}
		if !f.broadcast.has(realtime.KindOrderCancelled) {
			t.Fatal("order.cancelled not broadcast")
		}
	})
}

func TestClosedOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("closure prunes transient events and keeps the critical log", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.toReview(t, "u1")
		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.MarkDelivered(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}

		for _, et := range f.eventTypes(t, o.ID) {
			if !orders.IsCriticalEvent(et) {
				t.Fatalf("transient event %s survived closure", et)
			}
		}

		got := f.eventTypes(t, o.ID)
		want := map[string]bool{
			orders.EventOrderSubmitted: true,
			orders.EventOrderDelivered: true,
			orders.EventOrderClosed:    true,
		}
		if len(got) != len(want) {
			t.Fatalf("critical events = %v", got)
		}
		for _, et := range got {
			if !want[et] {
				t.Fatalf("unexpected event %s", et)
			}
		}
		if !f.broadcast.has(realtime.KindOrderClosed) {
			t.Fatal("order.closed not broadcast")
		}
	})

	t.Run("every action on a closed order fails", func(t *testing.T) {
		f := newFixture(t, false)
		o := f.create(t, "u1")
		if _, err := f.svc.Cancel(ctx, o.ID, orders.Actor{Type: orders.ActorAdmin, ID: "staff-1"}, orders.CancelInput{}); err != nil {
			t.Fatal(err)
		}

		checks := []error{}
		_, err := f.svc.Accept(ctx, o.ID, "staff-1")
		checks = append(checks, err)
		_, _, err = f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, "u", "k")
		checks = append(checks, err)
		_, err = f.svc.VerifyPayment(ctx, o.ID, "staff-1")
		checks = append(checks, err)
		_, err = f.svc.RejectPayment(ctx, o.ID, "staff-1", "x")
		checks = append(checks, err)
		_, err = f.svc.MarkDelivered(ctx, o.ID, "staff-1")
		checks = append(checks, err)
		_, err = f.svc.Cancel(ctx, o.ID, orders.Actor{Type: orders.ActorAdmin, ID: "staff-1"}, orders.CancelInput{})
		checks = append(checks, err)

		for i, err := range checks {
			if !errors.Is(err, orders.ErrOrderClosed) {
				t.Fatalf("action %d on closed order: got %v, want ErrOrderClosed", i, err)
			}
		}
	})

	t.Run("closed flag matches a terminal status after every transition", func(t *testing.T) {
		f := newFixture(t, true)

		check := func(step string, orderID string) {
			t.Helper()
			var row orders.Order
			if err := f.db.First(&row, "id = ?", orderID).Error; err != nil {
				t.Fatal(err)
			}
			if row.IsClosed != orders.IsTerminalStatus(row.Status) {
				t.Fatalf("after %s: is_closed=%v status=%s", step, row.IsClosed, row.Status)
			}
		}

		o := f.create(t, "u1")
		check("create", o.ID)
		if _, err := f.svc.Accept(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		check("accept", o.ID)
		if _, _, err := f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, "u", "k"); err != nil {
			t.Fatal(err)
		}
		check("attach receipt", o.ID)
		if _, err := f.svc.RejectPayment(ctx, o.ID, "staff-1", "retry"); err != nil {
			t.Fatal(err)
		}
		check("reject", o.ID)
		if _, _, err := f.svc.AttachReceipt(ctx, o.ID, orders.Actor{Type: orders.ActorUser, ID: "u1"}, "u2", "k2"); err != nil {
			t.Fatal(err)
		}
		check("re-attach receipt", o.ID)
		if _, err := f.svc.VerifyPayment(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		check("verify", o.ID)
		if _, err := f.svc.MarkOutForDelivery(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		check("out for delivery", o.ID)
		if _, err := f.svc.MarkDelivered(ctx, o.ID, "staff-1"); err != nil {
			t.Fatal(err)
		}
		check("deliver", o.ID)

		cancelled := f.create(t, "u2")
		check("create second", cancelled.ID)
		if _, err := f.svc.Cancel(ctx, cancelled.ID, orders.Actor{Type: orders.ActorAdmin, ID: "staff-1"}, orders.CancelInput{}); err != nil {
			t.Fatal(err)
		}
		check("cancel", cancelled.ID)
	})
}
