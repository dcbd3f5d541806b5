package gateway

import "strings"

const userSuffix = "@c.us"

// BroadcastAddress is the pseudo-sender used for status broadcasts; events
// from it do not belong to any real conversation.
const BroadcastAddress = "status@broadcast"

// FormatJID normalizes a destination into the transport's address form.
// Bare phone-derived identifiers get the user suffix appended; addresses
// that already carry a suffix pass through unchanged.
func FormatJID(to string) string {
	if strings.Contains(to, "@") {
		return to
	}
	return to + userSuffix
}

// ContactID extracts the normalized contact identifier from a transport
// address, e.g. "15551234567@c.us" -> "15551234567".
func ContactID(address string) string {
	if i := strings.Index(address, "@"); i >= 0 {
		return address[:i]
	}
	return address
}

// IsBroadcast reports whether the address is the status/broadcast channel.
func IsBroadcast(address string) bool {
	return address == BroadcastAddress || strings.HasSuffix(address, "@broadcast")
}
