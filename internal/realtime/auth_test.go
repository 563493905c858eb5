package realtime

import (
	"context"
	"errors"
	"testing"
)

type stubDirectory struct {
	owners map[string]*string
}

func (d *stubDirectory) OwnerByDisplayID(_ context.Context, displayID string) (*string, bool, error) {
	owner, ok := d.owners[displayID]
	if !ok {
		return nil, false, nil
	}
	return owner, true, nil
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	owner := "user-1"
	dir := &stubDirectory{owners: map[string]*string{
		"KS-OWNED": &owner,
		"KS-GUEST": nil, // guest order, no account
	}}
	a := NewAuthorizer(dir)

	cases := []struct {
		name    string
		caller  Caller
		channel string
		wantErr error
	}{
		{"staff subscribes to the staff channel", Caller{UserID: "s1", Staff: true}, StaffChannel, nil},
		{"customer cannot subscribe to the staff channel", Caller{UserID: "user-1"}, StaffChannel, ErrSubscribeForbidden},
		{"owner subscribes to their order channel", Caller{UserID: "user-1"}, "order.KS-OWNED", nil},
		{"staff subscribes to any order channel", Caller{UserID: "s1", Staff: true}, "order.KS-OWNED", nil},
		{"stranger cannot subscribe to another order", Caller{UserID: "user-2"}, "order.KS-OWNED", ErrSubscribeForbidden},
		{"customer cannot claim a guest order", Caller{UserID: "user-1"}, "order.KS-GUEST", ErrSubscribeForbidden},
		{"staff can watch a guest order", Caller{UserID: "s1", Staff: true}, "order.KS-GUEST", nil},
		{"unknown order is rejected", Caller{UserID: "user-1"}, "order.KS-NOPE", ErrChannelUnknown},
		{"malformed channel is rejected", Caller{UserID: "user-1"}, "bogus", ErrChannelUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.Authorize(ctx, tc.caller, tc.channel)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Authorize(%+v, %s) = %v, want %v", tc.caller, tc.channel, err, tc.wantErr)
			}
		})
	}
}
