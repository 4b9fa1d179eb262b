package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// RealIP stores the client IP under "real_ip" for rate-limit keys and logs.
//
// Forwarding headers are only believed when the TCP peer is one of the
// trusted proxies (IPs or CIDRs). Then the order is CF-Connecting-IP, the
// right-most X-Forwarded-For hop that is not itself trusted, X-Real-IP.
// Otherwise the peer address is the client.
func RealIP(trusted []string) gin.HandlerFunc {
	nets := parseTrusted(trusted)
	return func(c *gin.Context) {
		c.Set("real_ip", resolveIP(c, nets))
		c.Next()
	}
}

// parseTrusted turns IPs and CIDRs into networks. Entries that are neither
// are dropped.
func parseTrusted(entries []string) []*net.IPNet {
	var out []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				continue
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func resolveIP(c *gin.Context, trusted []*net.IPNet) string {
	peer := c.RemoteIP()
	if !containsIP(trusted, peer) {
		if peer == "" {
			return "unknown"
		}
		return peer
	}

	if ip := parseIP(c.GetHeader("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := parseIP(hops[i])
			if ip == "" {
				break
			}
			if !containsIP(trusted, ip) {
				return ip
			}
		}
	}
	if ip := parseIP(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func containsIP(nets []*net.IPNet, s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
