// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors provides user-friendly error handling for HTTP requests
// against the query coordinator.
package httperrors

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Describe converts technical HTTP/network errors into a short user-facing
// hint. The returned string is suitable for a one-line terminal message; the
// original error stays available for logging.
func Describe(err error, host string) string {
	if err == nil {
		return ""
	}
	switch {
	case isTimeoutError(err):
		return "the coordinator at " + host + " took too long to respond"
	case isDNSError(err):
		return "cannot resolve " + host + " (check the host setting and your DNS)"
	case isConnectionRefusedError(err):
		return host + " refused the connection (is the coordinator running on that port?)"
	case isTLSError(err):
		return "secure connection to " + host + " failed (check ssl/ssl_verify settings)"
	default:
		return "cannot reach " + host
	}
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded")
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// isTLSError checks if the error is a TLS handshake/certificate error.
func isTLSError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "tls") ||
		strings.Contains(s, "certificate") ||
		strings.Contains(s, "handshake")
}

// HostOf extracts the hostname from a URL for error messages.
func HostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
