package messaging

import "strings"

var groupSuffixes = []string{"@g.us", "@broadcast", "@newsletter"}

// IsGroupAddress reports whether addr is a group, broadcast list or channel
// rather than a single customer.
func IsGroupAddress(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	if a == "" {
		return false
	}
	if strings.HasPrefix(a, "status@") {
		return true
	}
	for _, suffix := range groupSuffixes {
		if strings.HasSuffix(a, suffix) {
			return true
		}
	}
	return false
}

// NormalizeAddress strips the device and server parts from a chat address,
// leaving the customer's account id (usually the phone number).
func NormalizeAddress(addr string) string {
	a := strings.TrimSpace(addr)
	if i := strings.IndexByte(a, '@'); i >= 0 {
		a = a[:i]
	}
	if i := strings.IndexByte(a, ':'); i >= 0 {
		a = a[:i]
	}
	return strings.TrimPrefix(a, "+")
}
