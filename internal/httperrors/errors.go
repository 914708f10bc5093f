// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies network failures and turns them into short,
// user-facing explanations.
package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Class is a coarse category of network failure.
type Class int

const (
	Generic Class = iota
	Timeout
	DNS
	Refused
	TLS
	Server
)

// Classify inspects err and reports its category.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Generic
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return Refused
	case isSSLError(err):
		return TLS
	case isServerError(err.Error()):
		return Server
	}
	return Generic
}

// Describe returns a one-line explanation of err suitable for chat replies.
// host names the remote side, for example "Salesforce".
func Describe(err error, host string) string {
	switch Classify(err) {
	case Timeout:
		return fmt.Sprintf("%s did not respond in time", host)
	case DNS:
		return fmt.Sprintf("cannot resolve the %s address", host)
	case Refused:
		return fmt.Sprintf("%s refused the connection", host)
	case TLS:
		return fmt.Sprintf("secure connection to %s failed", host)
	case Server:
		return fmt.Sprintf("%s reported a server error", host)
	}
	return fmt.Sprintf("cannot reach %s", host)
}

// FormatNetworkError prints troubleshooting guidance for err to the terminal
// and returns it wrapped for logging.
func FormatNetworkError(err error, action string) error {
	if err == nil {
		return nil
	}
	displayErrorMessage(err, action)
	return fmt.Errorf("network error: %w", err)
}

func displayErrorMessage(err error, action string) {
	switch Classify(err) {
	case Timeout:
		pterm.Printf("⏱️  Connection timeout while %s\n\n", action)
		printHints("The remote service took too long to respond:",
			"Slow or flaky network connection",
			"The CRM or language model API is under heavy load",
			"A firewall is silently dropping traffic")
	case DNS:
		pterm.Printf("🌐 Cannot resolve server address while %s\n\n", action)
		printHints("Please check:",
			"Your internet connection is working",
			"The instance URL in your config is spelled correctly")
	case Refused:
		pterm.Printf("🚫 Connection refused while %s\n\n", action)
		printHints("The server is not accepting connections:",
			"Wrong instance URL or port",
			"A proxy or firewall is blocking the connection")
	case TLS:
		pterm.Printf("🔒 Secure connection failed while %s\n\n", action)
		printHints("Try:",
			"Check your system date and time",
			"Verify network proxy settings")
	case Server:
		pterm.Printf("⚠️  Server error while %s\n\n", action)
		printHints("The remote service failed to handle the request.",
			"Please try again in a few minutes")
	default:
		pterm.Printf("❌ Network failure while %s\n\n", action)
		msg := err.Error()
		if len(msg) > 100 {
			msg = msg[:100] + "..."
		}
		pterm.Debug.Printf("Technical details: %s\n", msg)
	}
}

func printHints(title string, hints ...string) {
	pterm.Println(title)
	for _, h := range hints {
		pterm.Println("  • " + h)
	}
	pterm.Println()
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate")
}

// isServerError checks for 5xx markers in an error message.
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, marker := range []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// HostOf extracts the host from a URL for error messages.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
