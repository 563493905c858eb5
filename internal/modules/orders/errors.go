package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderClosed       = errors.New("order is already closed")
	ErrConflict          = errors.New("order changed concurrently, retry")
	ErrCancelWindow      = errors.New("order can no longer be cancelled")
	ErrCourierDisabled   = errors.New("courier tracking is not enabled")
	ErrEmptyOrder        = errors.New("order has no items")
)

// ActiveOrderError blocks a customer from opening a second order while one is
// still in flight. It carries the blocking order so the caller can redirect.
type ActiveOrderError struct {
	DisplayID string
	Status    string
}

func (e *ActiveOrderError) Error() string {
	return fmt.Sprintf("customer already has an active order %s (%s)", e.DisplayID, e.Status)
}
