package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a model backend failure. Transient kinds are retried by
// the client wrapper; permanent kinds surface immediately.
type Kind string

const (
	KindUnauthorized   Kind = "unauthorized"
	KindQuota          Kind = "insufficient_quota"
	KindRateLimit      Kind = "rate_limit"
	KindTimeout        Kind = "timeout"
	KindNetwork        Kind = "network"
	KindInvalidRequest Kind = "invalid_request"
	KindServerError    Kind = "server_error"
	KindUnknown        Kind = "unknown"
)

// Error is a typed model backend failure.
type Error struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("model %s (http %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("model %s: %s", e.Kind, e.Detail)
}

// Transient reports whether a retry may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindServerError, KindRateLimit:
		return true
	}
	return false
}

// Message is a short human-readable description of the failure class.
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnauthorized:
		return "API key rejected or missing"
	case KindQuota:
		return "account balance or quota exhausted"
	case KindRateLimit:
		return "request rate limited"
	case KindTimeout:
		return "request timed out"
	case KindNetwork:
		return "network connection failed"
	case KindInvalidRequest:
		return "invalid request or model name"
	case KindServerError:
		return "model server error"
	}
	return "model call failed"
}

// Hint is a remediation suggestion for the failure class.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindUnauthorized:
		return "check that the API key, endpoint and permissions match"
	case KindQuota:
		return "check the account balance or switch to another account"
	case KindRateLimit:
		return "increase the capture interval or retry later"
	case KindTimeout:
		return "check the network or retry later"
	case KindNetwork:
		return "check the network, proxy and endpoint address"
	case KindInvalidRequest:
		return "confirm the model name is compatible with the selected API shape"
	case KindServerError:
		return "retry later or switch endpoints"
	}
	return "check the error detail or the exchange log"
}

// classifyStatus maps an HTTP response to a typed error, inspecting the
// body text when the status alone is ambiguous.
func classifyStatus(status int, body string) *Error {
	lower := strings.ToLower(body)

	switch {
	case status == 401 || status == 403:
		return &Error{Kind: KindUnauthorized, Status: status, Detail: body}
	case status == 429:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") || strings.Contains(lower, "balance") {
			return &Error{Kind: KindQuota, Status: status, Detail: body}
		}
		return &Error{Kind: KindRateLimit, Status: status, Detail: body}
	case status == 402 || strings.Contains(lower, "insufficient_quota"):
		return &Error{Kind: KindQuota, Status: status, Detail: body}
	case status >= 500:
		return &Error{Kind: KindServerError, Status: status, Detail: body}
	case status == 400 || status == 404 || status == 422:
		return &Error{Kind: KindInvalidRequest, Status: status, Detail: body}
	}
	return &Error{Kind: KindUnknown, Status: status, Detail: body}
}

// classifyTransport maps a transport-level failure to a typed error.
func classifyTransport(err error) *Error {
	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}

	detail := err.Error()
	lower := strings.ToLower(detail)

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Detail: detail}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindTimeout, Detail: detail}
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") {
		return &Error{Kind: KindTimeout, Detail: detail}
	}
	if strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network") {
		return &Error{Kind: KindNetwork, Detail: detail}
	}
	return &Error{Kind: KindNetwork, Detail: detail}
}
