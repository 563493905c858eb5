package realtime

import (
	"context"
	"errors"
)

var (
	ErrChannelUnknown     = errors.New("unknown channel")
	ErrSubscribeForbidden = errors.New("not allowed to subscribe to this channel")
)

// Caller is the identity attempting to subscribe.
type Caller struct {
	UserID string
	Staff  bool
}

// OrderDirectory resolves an order channel back to its owner. Implemented by
// the orders repository.
type OrderDirectory interface {
	OwnerByDisplayID(ctx context.Context, displayID string) (ownerID *string, found bool, err error)
}

// Authorizer grants channel subscriptions: the staff channel requires staff
// capability; an order channel requires ownership or staff; a channel naming a
// non-existent order is rejected.
type Authorizer struct {
	orders OrderDirectory
}

func NewAuthorizer(orders OrderDirectory) *Authorizer {
	return &Authorizer{orders: orders}
}

func (a *Authorizer) Authorize(ctx context.Context, caller Caller, channel string) error {
	if channel == StaffChannel {
		if caller.Staff {
			return nil
		}
		return ErrSubscribeForbidden
	}

	displayID, ok := ParseOrderChannel(channel)
	if !ok {
		return ErrChannelUnknown
	}

	ownerID, found, err := a.orders.OwnerByDisplayID(ctx, displayID)
	if err != nil {
		return err
	}
	if !found {
		return ErrChannelUnknown
	}
	if caller.Staff {
		return nil
	}
	if ownerID != nil && caller.UserID != "" && *ownerID == caller.UserID {
		return nil
	}
	return ErrSubscribeForbidden
}
