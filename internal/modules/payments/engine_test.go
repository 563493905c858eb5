package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/testdb"
)

func newEngineDB(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t, &OrderPayment{}, &PromptPayAccount{})
	return NewEngine(db), db
}

func seedPending(t *testing.T, e *Engine, db *gorm.DB, orderID string) OrderPayment {
	t.Helper()
	var p OrderPayment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = e.UpsertPendingTx(context.Background(), tx, orderID, TypeCombined,
			decimal.NewFromInt(300), "payload", "acct-1")
		return err
	})
	if err != nil {
		t.Fatalf("seed pending payment: %v", err)
	}
	return p
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("pending payment accepts a receipt", func(t *testing.T) {
		e, db := newEngineDB(t)
		seedPending(t, e, db, "o1")

		var p OrderPayment
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			p, err = e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "http://r/slip.jpg", "receipts/slip.jpg")
			return err
		})
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		if p.Status != StatusReceiptUploaded {
			t.Fatalf("status = %s, want %s", p.Status, StatusReceiptUploaded)
		}
		if p.ReceiptURL == nil || *p.ReceiptURL != "http://r/slip.jpg" {
			t.Fatalf("receipt url not stored: %+v", p)
		}
		if p.ReceiptUploadedAt == nil {
			t.Fatal("receipt_uploaded_at not stamped")
		}
	})

	t.Run("verify stamps the reviewer and requires an uploaded receipt", func(t *testing.T) {
		e, db := newEngineDB(t)
		seedPending(t, e, db, "o1")

		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := e.VerifyTx(ctx, tx, "o1", TypeCombined, "staff-1")
			return err
		})
		if !errors.Is(err, ErrNoReceipt) {
			t.Fatalf("verify without receipt: got %v, want ErrNoReceipt", err)
		}

		var p OrderPayment
		err = db.Transaction(func(tx *gorm.DB) error {
			if _, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k"); err != nil {
				return err
			}
			var err error
			p, err = e.VerifyTx(ctx, tx, "o1", TypeCombined, "staff-1")
			return err
		})
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if p.Status != StatusVerified {
			t.Fatalf("status = %s, want %s", p.Status, StatusVerified)
		}
		if p.VerifiedBy == nil || *p.VerifiedBy != "staff-1" {
			t.Fatalf("verified_by = %v, want staff-1", p.VerifiedBy)
		}
	})

	t.Run("reject increments the counter and a re-upload clears the reason", func(t *testing.T) {
		e, db := newEngineDB(t)
		seedPending(t, e, db, "o1")

		upload := func() error {
			return db.Transaction(func(tx *gorm.DB) error {
				_, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k")
				return err
			})
		}
		reject := func(reason string) (OrderPayment, error) {
			var p OrderPayment
			err := db.Transaction(func(tx *gorm.DB) error {
				var err error
				p, err = e.RejectTx(ctx, tx, "o1", TypeCombined, reason)
				return err
			})
			return p, err
		}

		if err := upload(); err != nil {
			t.Fatalf("first upload: %v", err)
		}
		p, err := reject("blurry photo")
		if err != nil {
			t.Fatalf("first reject: %v", err)
		}
		if p.RejectCount != 1 {
			t.Fatalf("reject count = %d, want 1", p.RejectCount)
		}
		if p.RejectReason == nil || *p.RejectReason != "blurry photo" {
			t.Fatalf("reject reason = %v", p.RejectReason)
		}

		if err := upload(); err != nil {
			t.Fatalf("re-upload after rejection: %v", err)
		}
		if err := db.First(&p, "order_id = ?", "o1").Error; err != nil {
			t.Fatal(err)
		}
		if p.RejectReason != nil {
			t.Fatalf("reject reason not cleared on re-upload: %v", *p.RejectReason)
		}
		if p.RejectCount != 1 {
			t.Fatalf("counter must survive re-upload, got %d", p.RejectCount)
		}

		p, err = reject("wrong amount")
		if err != nil {
			t.Fatalf("second reject: %v", err)
		}
		if p.RejectCount != 2 {
			t.Fatalf("counter must be monotonic, got %d", p.RejectCount)
		}
	})

	t.Run("ten rejections exhaust the retry loop", func(t *testing.T) {
		e, db := newEngineDB(t)
		seedPending(t, e, db, "o1")

		for i := 1; i <= MaxRejections; i++ {
			err := db.Transaction(func(tx *gorm.DB) error {
				if _, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k"); err != nil {
					return err
				}
				p, err := e.RejectTx(ctx, tx, "o1", TypeCombined, "wrong slip")
				if err != nil {
					return err
				}
				if p.RejectCount != i {
					t.Fatalf("round %d: count = %d", i, p.RejectCount)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("round %d: %v", i, err)
			}
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k")
			return err
		})
		if !errors.Is(err, ErrRejectionCap) {
			t.Fatalf("upload after %d rejections: got %v, want ErrRejectionCap", MaxRejections, err)
		}

		chk, err := e.CanUploadReceipt(ctx, "o1", TypeCombined)
		if err != nil {
			t.Fatal(err)
		}
		if chk.Allowed {
			t.Fatal("upload must be disallowed at the cap")
		}
	})

	t.Run("CanUploadReceipt answers per state", func(t *testing.T) {
		e, db := newEngineDB(t)

		chk, err := e.CanUploadReceipt(ctx, "missing", TypeCombined)
		if err != nil {
			t.Fatal(err)
		}
		if chk.Allowed {
			t.Fatal("no payment row must disallow upload")
		}

		seedPending(t, e, db, "o1")
		chk, err = e.CanUploadReceipt(ctx, "o1", TypeCombined)
		if err != nil || !chk.Allowed {
			t.Fatalf("pending must allow upload: allowed=%v err=%v", chk.Allowed, err)
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			_, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k")
			return err
		}); err != nil {
			t.Fatal(err)
		}
		chk, _ = e.CanUploadReceipt(ctx, "o1", TypeCombined)
		if chk.Allowed {
			t.Fatal("receipt_uploaded must disallow a second upload")
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			_, err := e.VerifyTx(ctx, tx, "o1", TypeCombined, "staff-1")
			return err
		}); err != nil {
			t.Fatal(err)
		}
		chk, _ = e.CanUploadReceipt(ctx, "o1", TypeCombined)
		if chk.Allowed {
			t.Fatal("verified must disallow upload")
		}
	})

	t.Run("upsert resets an existing row to pending", func(t *testing.T) {
		e, db := newEngineDB(t)
		seedPending(t, e, db, "o1")

		if err := db.Transaction(func(tx *gorm.DB) error {
			_, err := e.MarkReceiptUploadedTx(ctx, tx, "o1", TypeCombined, "u", "k")
			return err
		}); err != nil {
			t.Fatal(err)
		}

		var p OrderPayment
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			p, err = e.UpsertPendingTx(ctx, tx, "o1", TypeCombined,
				decimal.NewFromInt(450), "payload2", "acct-2")
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if p.Status != StatusPending {
			t.Fatalf("status = %s, want pending", p.Status)
		}
		if p.QRPayload != "payload2" {
			t.Fatalf("qr payload not replaced: %s", p.QRPayload)
		}
		if !p.Amount.Equal(decimal.NewFromInt(450)) {
			t.Fatalf("amount = %s, want 450", p.Amount)
		}

		var count int64
		if err := db.Model(&OrderPayment{}).Where("order_id = ?", "o1").Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Fatalf("one payment row per (order, type), got %d", count)
		}
	})
}
