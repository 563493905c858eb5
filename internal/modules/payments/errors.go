package payments

import "errors"

var (
	ErrPaymentNotFound   = errors.New("payment record not found")
	ErrReceiptNotAllowed = errors.New("receipt upload not allowed")
	ErrRejectionCap      = errors.New("rejection limit reached, contact support")
	ErrNoReceipt         = errors.New("no uploaded receipt to review")
	ErrNoActiveAccount   = errors.New("no active PromptPay account configured")
	ErrAccountNotFound   = errors.New("PromptPay account not found")
)
