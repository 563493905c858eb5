package realtime

import "time"

type Kind string

const (
	KindOrderSubmitted   Kind = "order.submitted"
	KindStatusChanged    Kind = "order.status.changed"
	KindOrderClosed      Kind = "order.closed"
	KindOrderCancelled   Kind = "order.cancelled"
	KindOrderDelivered   Kind = "order.delivered"
	KindPaymentRequested Kind = "payment.requested"
	KindReceiptUploaded  Kind = "payment.receipt_uploaded"
	KindPaymentVerified  Kind = "payment.verified"
	KindPaymentRejected  Kind = "payment.rejected"
	KindCourierAssigned  Kind = "courier.assigned"
	KindCourierTracking  Kind = "courier.tracking.updated"
)

// Route declares which audiences a kind fans out to.
type Route struct {
	Staff bool
	Order bool
}

var routes = map[Kind]Route{
	KindOrderSubmitted:   {Staff: true, Order: true},
	KindStatusChanged:    {Staff: true, Order: true},
	KindOrderClosed:      {Staff: true, Order: true},
	KindOrderCancelled:   {Staff: true, Order: true},
	KindOrderDelivered:   {Staff: true, Order: true},
	KindPaymentRequested: {Order: true},
	KindReceiptUploaded:  {Staff: true},
	KindPaymentVerified:  {Staff: true, Order: true},
	KindPaymentRejected:  {Staff: true, Order: true},
	KindCourierAssigned:  {Order: true},
	KindCourierTracking:  {Order: true},
}

// RouteFor returns the declared routing for a kind; unknown kinds route nowhere.
func RouteFor(k Kind) Route { return routes[k] }

// Event is the wire envelope. Consumers treat EventID as a dedup key and fetch
// authoritative state on refresh rather than trusting payload completeness.
// When one transition fans out to both audiences the derived events share the
// base EventID with a per-audience suffix.
type Event struct {
	EventID    string    `json:"event_id"`
	Kind       Kind      `json:"kind"`
	OrderID    string    `json:"order_id"`
	DisplayID  string    `json:"display_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	ActorType  string    `json:"actor_type"`
	OccurredAt time.Time `json:"occurred_at"`
}
