package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Publisher is the transport contract. Delivery is at-least-once and unordered
// across channels; the system prescribes no particular product.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Broadcaster fans lifecycle events out to the staff-wide and per-order
// channels per the kind registry. It is fire-and-forget relative to the state
// transition that triggered it: the mutation is already committed, so a
// transport failure is logged and swallowed.
type Broadcaster struct {
	pub Publisher
	log *slog.Logger
}

func NewBroadcaster(pub Publisher, log *slog.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, log: log}
}

func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	route := RouteFor(ev.Kind)
	if !route.Staff && !route.Order {
		b.log.WarnContext(ctx, "event kind has no route", "kind", string(ev.Kind), "event_id", ev.EventID)
		return
	}

	baseID := ev.EventID
	both := route.Staff && route.Order

	if route.Staff {
		out := ev
		if both {
			out.EventID = baseID + ".staff"
		}
		b.send(ctx, StaffChannel, out)
	}
	if route.Order {
		out := ev
		if both {
			out.EventID = baseID + ".order"
		}
		b.send(ctx, OrderChannel(ev.DisplayID), out)
	}
}

func (b *Broadcaster) send(ctx context.Context, channel string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.ErrorContext(ctx, "broadcast marshal failed", "event_id", ev.EventID, "err", err)
		return
	}
	if err := b.pub.Publish(ctx, channel, payload); err != nil {
		b.log.ErrorContext(ctx, "broadcast publish failed",
			"channel", channel, "kind", string(ev.Kind), "event_id", ev.EventID, "err", err)
	}
}
