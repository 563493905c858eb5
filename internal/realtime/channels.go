package realtime

import "strings"

// One fixed staff-wide channel; one channel per order keyed by display id.
// Names must be derivable both ways so an inbound subscription request can be
// mapped back to the order it names.

const (
	StaffChannel       = "staff.orders"
	orderChannelPrefix = "order."
)

func OrderChannel(displayID string) string {
	return orderChannelPrefix + displayID
}

// ParseOrderChannel extracts the display id from an order channel name.
func ParseOrderChannel(channel string) (displayID string, ok bool) {
	if !strings.HasPrefix(channel, orderChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, orderChannelPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
