package security

import (
	"net"
	"strings"
)

// IsLoopback reports whether ip is a loopback address (127.0.0.0/8 or ::1).
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}
