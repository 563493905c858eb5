package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/storage"
	"kruasiam.com/app/internal/testdb"
)

type recordingStore struct {
	deleted  []string
	failKeys map[string]bool
}

func (s *recordingStore) Put(_ context.Context, _ io.Reader, _ storage.PutInput) (storage.PutResult, error) {
	return storage.PutResult{}, nil
}

func (s *recordingStore) Delete(_ context.Context, key string) error {
	if s.failKeys[key] {
		return errors.New("object store unavailable")
	}
	s.deleted = append(s.deleted, key)
	return nil
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testdb.Open(t,
		&orders.Order{}, &orders.OrderItem{}, &orders.OrderEvent{},
		&payments.OrderPayment{},
	)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type seedOpts struct {
	closed     bool
	closedAgo  time.Duration
	receiptKey string
}

func seedOrder(t *testing.T, db *gorm.DB, opt seedOpts) orders.Order {
	t.Helper()
	now := time.Now()

	o := orders.Order{
		ID:           uuid.NewString(),
		DisplayID:    "KS-" + uuid.NewString()[:8],
		Status:       orders.StatusDelivered,
		IsClosed:     opt.closed,
		Subtotal:     decimal.NewFromInt(100),
		Tax:          decimal.Zero,
		DeliveryFee:  decimal.Zero,
		Total:        decimal.NewFromInt(100),
		RefundType:   orders.RefundNone,
		RefundStatus: orders.RefundStatusNone,
		CreatedAt:    now.Add(-opt.closedAgo - time.Hour),
		UpdatedAt:    now,
	}
	if !opt.closed {
		o.Status = orders.StatusInKitchen
	}
	if opt.closed {
		closedAt := now.Add(-opt.closedAgo)
		o.ClosedAt = &closedAt
	}
	if err := db.Create(&o).Error; err != nil {
		t.Fatal(err)
	}

	item := orders.OrderItem{
		ID: uuid.NewString(), OrderID: o.ID, MenuName: "Pad Thai",
		Quantity: 1, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(100),
		CreatedAt: now,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatal(err)
	}

	for _, et := range []string{orders.EventOrderSubmitted, orders.EventStatusUpdated, orders.EventOrderClosed} {
		ev := orders.OrderEvent{
			ID: uuid.NewString(), OrderID: o.ID, ActorType: orders.ActorSystem,
			EventType: et, CreatedAt: now,
		}
		if err := db.Create(&ev).Error; err != nil {
			t.Fatal(err)
		}
	}

	p := payments.OrderPayment{
		ID: uuid.NewString(), OrderID: o.ID, PaymentType: payments.TypeCombined,
		Amount: decimal.NewFromInt(100), Status: payments.StatusVerified,
		QRPayload: "payload", CreatedAt: now, UpdatedAt: now,
	}
	if opt.receiptKey != "" {
		key := opt.receiptKey
		p.ReceiptKey = &key
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	return o
}

func TestCleanupTransientEvents(t *testing.T) {
	db := openDB(t)
	store := &recordingStore{}
	svc := NewService(db, store, discard(), time.Hour, 10)

	o := seedOrder(t, db, seedOpts{closed: true, closedAgo: time.Minute})

	if err := svc.CleanupTransientEvents(context.Background(), o.ID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	var evs []orders.OrderEvent
	if err := db.Find(&evs, "order_id = ?", o.ID).Error; err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("events after cleanup = %d, want 2 critical", len(evs))
	}
	for _, ev := range evs {
		if !orders.IsCriticalEvent(ev.EventType) {
			t.Fatalf("transient event %s survived", ev.EventType)
		}
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("purges expired closed orders and their children", func(t *testing.T) {
		db := openDB(t)
		store := &recordingStore{}
		svc := NewService(db, store, discard(), 7*24*time.Hour, 10)

		expired := seedOrder(t, db, seedOpts{closed: true, closedAgo: 8 * 24 * time.Hour, receiptKey: "receipts/a.jpg"})
		fresh := seedOrder(t, db, seedOpts{closed: true, closedAgo: time.Hour})
		open := seedOrder(t, db, seedOpts{closed: false})

		rep, err := svc.PurgeExpired(ctx)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if rep.Scanned != 1 || rep.Purged != 1 || rep.Remaining != 0 {
			t.Fatalf("report = %+v", rep)
		}

		var count int64
		db.Model(&orders.Order{}).Where("id = ?", expired.ID).Count(&count)
		if count != 0 {
			t.Fatal("expired order not deleted")
		}
		for _, model := range []any{&orders.OrderItem{}, &orders.OrderEvent{}, &payments.OrderPayment{}} {
			db.Model(model).Where("order_id = ?", expired.ID).Count(&count)
			if count != 0 {
				t.Fatalf("%T rows survived the purge", model)
			}
		}

		db.Model(&orders.Order{}).Where("id IN ?", []string{fresh.ID, open.ID}).Count(&count)
		if count != 2 {
			t.Fatal("orders inside retention or still open must survive")
		}

		if len(store.deleted) != 1 || store.deleted[0] != "receipts/a.jpg" {
			t.Fatalf("receipt deletes = %v", store.deleted)
		}
	})

	t.Run("batch size caps one run and reports the remainder", func(t *testing.T) {
		db := openDB(t)
		store := &recordingStore{}
		svc := NewService(db, store, discard(), 24*time.Hour, 2)

		for i := 0; i < 5; i++ {
			seedOrder(t, db, seedOpts{closed: true, closedAgo: 48 * time.Hour})
		}

		rep, err := svc.PurgeExpired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Scanned != 2 || rep.Purged != 2 || rep.Remaining != 3 {
			t.Fatalf("report = %+v", rep)
		}

		// repeated runs converge
		rep, err = svc.PurgeExpired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Purged != 2 || rep.Remaining != 1 {
			t.Fatalf("second report = %+v", rep)
		}
		rep, err = svc.PurgeExpired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Purged != 1 || rep.Remaining != 0 {
			t.Fatalf("third report = %+v", rep)
		}
	})

	t.Run("receipt delete failure is flagged but does not block the purge", func(t *testing.T) {
		db := openDB(t)
		store := &recordingStore{failKeys: map[string]bool{"receipts/bad.jpg": true}}
		svc := NewService(db, store, discard(), 24*time.Hour, 10)

		o := seedOrder(t, db, seedOpts{closed: true, closedAgo: 48 * time.Hour, receiptKey: "receipts/bad.jpg"})

		rep, err := svc.PurgeExpired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Purged != 1 || rep.ReceiptFailures != 1 {
			t.Fatalf("report = %+v", rep)
		}

		var count int64
		db.Model(&orders.Order{}).Where("id = ?", o.ID).Count(&count)
		if count != 0 {
			t.Fatal("order must still be purged when the receipt delete fails")
		}
	})
}
