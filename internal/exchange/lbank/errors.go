package lbank

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// rate-limit error code reported by the exchange
const errCodeRateLimit = 10004

// APIError is a business error reported by the exchange itself: bad
// credentials, missing permission, unknown error code. It is never retried
// except for the rate-limit code, which the transport backs off on.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lbank api error %d: %s", e.Code, e.Message)
}

// RateLimited reports whether the exchange rejected the call for exceeding
// its request ceiling.
func (e *APIError) RateLimited() bool {
	return e.Code == errCodeRateLimit
}

// HostFailure records why one host of the failover list could not serve a call.
type HostFailure struct {
	Host string
	Err  error
}

// HostsExhaustedError aggregates the failure reason per host attempted, so
// callers can diagnose partial outages instead of seeing only the last host.
type HostsExhaustedError struct {
	Op       string
	Failures []HostFailure
}

func (e *HostsExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Host, f.Err))
	}
	return fmt.Sprintf("%s failed on all hosts: %s", e.Op, strings.Join(parts, "; "))
}

// IsBusinessError reports whether err carries an exchange error code other
// than the retryable rate-limit one.
func IsBusinessError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return !apiErr.RateLimited()
}

// apiErrorFromPayload inspects a decoded response for an exchange-reported
// failure. Arrays and objects without an error code are treated as success;
// shape quirks are left to the normalizer.
func apiErrorFromPayload(payload any) *APIError {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	if result, ok := obj["result"]; ok && resultTrue(result) {
		return nil
	}

	code, ok := errorCode(obj)
	if !ok || code == 0 {
		return nil
	}

	msg, _ := obj["msg"].(string)
	if msg == "" {
		msg, _ = obj["error_msg"].(string)
	}
	if msg == "" {
		msg = "unknown error"
	}

	return &APIError{Code: code, Message: msg}
}

// resultTrue matches the exchange's loose encodings of a truthy result field.
func resultTrue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}

func errorCode(obj map[string]any) (int, bool) {
	raw, ok := obj["error_code"]
	if !ok {
		return 0, false
	}
	switch val := raw.(type) {
	case float64:
		return int(val), true
	case string:
		code, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return code, true
	default:
		return 0, false
	}
}
