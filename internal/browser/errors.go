package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"

	"linkedin-outreach/internal/failure"
)

// Chrome net error codes that point at the egress proxy rather than the site
var proxyNetErrors = []string{
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_PROXY_AUTH_UNSUPPORTED",
	"ERR_PROXY_CERTIFICATE_INVALID",
	"ERR_NO_SUPPORTED_PROXIES",
	"ERR_MANDATORY_PROXY_CONFIGURATION_FAILED",
}

// Classify tags a rod error with its failure class. connected is the result
// of probing the browser after the error.
func Classify(op string, err error, connected bool) error {
	if err == nil {
		return nil
	}

	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}

	var nav *rod.NavigationError
	if errors.As(err, &nav) && IsProxyNetError(nav.Reason) {
		return failure.New(failure.ProxyIssue, op, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure.New(failure.Timeout, op, err)
	case errors.Is(err, context.Canceled):
		return failure.New(failure.Shutdown, op, err)
	case !connected:
		return failure.Errorf(failure.SessionInvalid, op, "browser disconnected: %w", err)
	}
	return failure.New(failure.Transient, op, err)
}

// IsProxyNetError reports whether a Chrome net error code is caused by the proxy
func IsProxyNetError(reason string) bool {
	for _, code := range proxyNetErrors {
		if strings.Contains(reason, code) {
			return true
		}
	}
	return false
}
