package cleanup

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/storage"
)

// Service owns the two data-lifecycle jobs: collapsing a closed order's event
// history down to critical events, and aging out whole closed orders past the
// retention window.
type Service struct {
	db        *gorm.DB
	store     storage.Storage
	log       *slog.Logger
	retention time.Duration
	batchSize int
}

func NewService(db *gorm.DB, store storage.Storage, log *slog.Logger, retention time.Duration, batchSize int) *Service {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{db: db, store: store, log: log, retention: retention, batchSize: batchSize}
}

// CleanupTransientEvents deletes every non-critical event row for the order.
// Invoked synchronously right after the order reaches a terminal state.
func (s *Service) CleanupTransientEvents(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).
		Where("order_id = ? AND event_type NOT IN ?", orderID, orders.CriticalEventTypes()).
		Delete(&orders.OrderEvent{}).Error
}

type Report struct {
	Scanned         int
	Purged          int
	ReceiptFailures int
	Remaining       int64
}

// PurgeExpired deletes closed orders older than the retention window, capped
// per run so a single invocation stays bounded. Receipt objects are deleted
// best-effort; a failed order-row delete leaves that order for the next run.
func (s *Service) PurgeExpired(ctx context.Context) (Report, error) {
	cutoff := time.Now().Add(-s.retention)

	var batch []orders.Order
	if err := s.db.WithContext(ctx).
		Where("is_closed = ? AND closed_at < ?", true, cutoff).
		Order("closed_at ASC").
		Limit(s.batchSize).
		Find(&batch).Error; err != nil {
		return Report{}, err
	}

	rep := Report{Scanned: len(batch)}
	for _, o := range batch {
		if !s.deleteReceipts(ctx, o.ID) {
			rep.ReceiptFailures++
		}
		if err := s.deleteOrder(ctx, o.ID); err != nil {
			s.log.ErrorContext(ctx, "order purge failed, will retry next run", "order_id", o.ID, "err", err)
			continue
		}
		rep.Purged++
	}

	// remaining work, so repeated runs can be observed converging
	if err := s.db.WithContext(ctx).Model(&orders.Order{}).
		Where("is_closed = ? AND closed_at < ?", true, cutoff).
		Count(&rep.Remaining).Error; err != nil {
		return rep, err
	}

	s.log.InfoContext(ctx, "purge run finished",
		"scanned", rep.Scanned, "purged", rep.Purged,
		"receipt_failures", rep.ReceiptFailures, "remaining", rep.Remaining)
	return rep, nil
}

// deleteReceipts removes the order's stored receipt images. Orphaned remote
// files are an accepted cost, so failures only flag the report.
func (s *Service) deleteReceipts(ctx context.Context, orderID string) bool {
	var pays []payments.OrderPayment
	if err := s.db.WithContext(ctx).Find(&pays, "order_id = ?", orderID).Error; err != nil {
		s.log.ErrorContext(ctx, "receipt lookup failed", "order_id", orderID, "err", err)
		return false
	}

	ok := true
	for _, p := range pays {
		if p.ReceiptKey == nil || *p.ReceiptKey == "" {
			continue
		}
		if err := s.store.Delete(ctx, *p.ReceiptKey); err != nil {
			s.log.WarnContext(ctx, "receipt delete failed, continuing",
				"order_id", orderID, "key", *p.ReceiptKey, "err", err)
			ok = false
		}
	}
	return ok
}

func (s *Service) deleteOrder(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&orders.OrderEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&payments.OrderPayment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&orders.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&orders.Order{}, "id = ?", orderID).Error
	})
}
