package addrutil

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultAPIPort       = 8080
	DefaultTelemetryPort = 9000
)

// Controller holds the two addresses a controller is reached at.
type Controller struct {
	// API is the HTTP base URL, e.g. http://10.0.0.1:8080.
	API string
	// Telemetry is the UDP host:port of the update listener.
	Telemetry string
}

// ParseController accepts a bare host, host:port or URL. A missing port
// selects DefaultAPIPort; the telemetry address always uses the API host
// with DefaultTelemetryPort.
func ParseController(addr string) (Controller, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return Controller{}, fmt.Errorf("controller address is empty")
	}

	scheme := "http"
	var host, port string
	if strings.Contains(a, "://") {
		u, err := url.Parse(a)
		if err != nil {
			return Controller{}, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return Controller{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		scheme = u.Scheme
		host, port = u.Hostname(), u.Port()
	} else {
		host, port = splitAddr(a)
	}
	if host == "" {
		return Controller{}, fmt.Errorf("controller address %q has no host", addr)
	}
	if port == "" {
		port = strconv.Itoa(DefaultAPIPort)
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return Controller{}, fmt.Errorf("controller address %q has invalid port", addr)
	}

	return Controller{
		API:       scheme + "://" + net.JoinHostPort(host, port),
		Telemetry: net.JoinHostPort(host, strconv.Itoa(DefaultTelemetryPort)),
	}, nil
}

// BaseURL prefixes addr with http:// unless it already carries a scheme.
func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func splitAddr(addr string) (string, string) {
	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, p, err := net.SplitHostPort(addr); err == nil {
		return h, p
	}

	// Handle unbracketed IPv6 "host:port" by peeling off the last ":port".
	if strings.Count(addr, ":") > 1 && !strings.HasPrefix(addr, "[") {
		if last := strings.LastIndexByte(addr, ':'); last > 0 && last < len(addr)-1 {
			host := addr[:last]
			port := addr[last+1:]
			if _, err := strconv.Atoi(port); err == nil && net.ParseIP(host) != nil {
				return host, port
			}
		}
	}

	// No port at all: raw IPv4, hostname or IPv6.
	return strings.Trim(addr, "[]"), ""
}
