package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SwaggerConfig controls the API documentation endpoint
type SwaggerConfig struct {
	Enabled    bool
	AllowedIPs []string // single IPs or CIDRs; empty allows every client
}

// SwaggerProtection returns a middleware that answers 403 to clients outside
// cfg.AllowedIPs. An entry that is neither an IP nor a CIDR is an error.
func SwaggerProtection(cfg SwaggerConfig) (gin.HandlerFunc, error) {
	var (
		allowedNets []*net.IPNet
		allowedIPs  []net.IP
	)
	for _, entry := range cfg.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("swagger allowed ip %q: %w", entry, err)
			}
			allowedNets = append(allowedNets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("swagger allowed ip %q: not an ip address", entry)
		}
		allowedIPs = append(allowedIPs, ip)
	}

	return func(c *gin.Context) {
		if len(cfg.AllowedIPs) > 0 && !isIPAllowed(clientIP(c), allowedIPs, allowedNets) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				dto.ErrCodeForbidden,
				"Access to API documentation is restricted",
				GetRequestID(c),
				false,
			))
			return
		}
		c.Next()
	}, nil
}

// clientIP prefers gin's proxy-aware ClientIP and falls back to RemoteAddr
func clientIP(c *gin.Context) net.IP {
	if ip := net.ParseIP(c.ClientIP()); ip != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	return net.ParseIP(host)
}

func isIPAllowed(ip net.IP, allowedIPs []net.IP, allowedNets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, allowed := range allowedIPs {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, network := range allowedNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
