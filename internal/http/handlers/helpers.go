package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/shared/apperr"
)

// toAppErr maps domain errors onto the response taxonomy. Anything unmapped is
// wrapped as internal and kept out of the response body.
func toAppErr(err error) *apperr.AppError {
	if ae, ok := apperr.As(err); ok {
		return ae
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFoundErr("Order not found.")
	case errors.Is(err, orders.ErrEmptyOrder):
		return apperr.InvalidErr("Order must contain at least one item.", nil)
	case errors.Is(err, orders.ErrInvalidTransition):
		return apperr.ConflictErr("Order is not in a state that allows this action.")
	case errors.Is(err, orders.ErrOrderClosed):
		return apperr.ConflictErr("Order is already closed.")
	case errors.Is(err, orders.ErrConflict):
		return apperr.ConflictErr("Order was updated by someone else. Please refresh and retry.")
	case errors.Is(err, orders.ErrCancelWindow):
		return apperr.ConflictErr("Order can no longer be cancelled. Please contact the restaurant.")
	case errors.Is(err, orders.ErrCourierDisabled):
		return apperr.ConflictErr("Courier tracking is not enabled.")
	case errors.Is(err, payments.ErrPaymentNotFound):
		return apperr.NotFoundErr("Payment record not found.")
	case errors.Is(err, payments.ErrReceiptNotAllowed):
		return apperr.ConflictErr("Receipt upload is not allowed right now.")
	case errors.Is(err, payments.ErrRejectionCap):
		return apperr.ConflictErr("Receipt rejected too many times. Please contact the restaurant.")
	case errors.Is(err, payments.ErrNoReceipt):
		return apperr.ConflictErr("No uploaded receipt to review.")
	case errors.Is(err, payments.ErrNoActiveAccount):
		return apperr.ConflictErr("No active PromptPay account is configured.")
	case errors.Is(err, payments.ErrAccountNotFound):
		return apperr.NotFoundErr("PromptPay account not found.")
	default:
		return apperr.Wrap(err)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pagesFromTotal(total int64, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		pages++
	}
	return pages
}
