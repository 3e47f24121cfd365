package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// TransientError marks a failure worth retrying: rate limits, gateway
// errors, timeouts.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// UnauthorizedError means the source rejected our credentials, or we
// had none to offer. MissingCredential distinguishes "never had a key"
// from "the key was refused".
type UnauthorizedError struct {
	SourceID          string
	StatusCode        int
	MissingCredential bool
}

func (e *UnauthorizedError) Error() string {
	if e.MissingCredential {
		return fmt.Sprintf("source %s requires credentials that are not configured", e.SourceID)
	}
	return fmt.Sprintf("source %s rejected credentials (status %d)", e.SourceID, e.StatusCode)
}

// AreaTooLargeError means the provider refused the request extent.
// The planner should already prevent this; when it happens anyway the
// source's advertised limits are wrong and the source is abandoned.
type AreaTooLargeError struct {
	SourceID string
	Detail   string
}

func (e *AreaTooLargeError) Error() string {
	return fmt.Sprintf("source %s refused request extent: %s", e.SourceID, e.Detail)
}

// retryable statuses follow the usual public-API conventions
func retryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

// looksLikeServiceException sniffs a response body for an OGC service
// exception. WCS servers like to return XML errors with a 200 status.
func looksLikeServiceException(body []byte) bool {
	head := string(body)
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "serviceexception") || strings.Contains(head, "exceptionreport")
}

// exceptionIndicatesAreaTooLarge checks the exception text for size
// refusals so they are not mistaken for transient failures.
func exceptionIndicatesAreaTooLarge(body []byte) bool {
	text := strings.ToLower(string(body))
	for _, marker := range []string{"too large", "too big", "exceeds", "maximum size", "limit"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// SanitizeURL strips credential query parameters so URLs are safe to
// log.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, key := range []string{"token", "api-key", "api_key", "apikey", "API_Key", "password"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	return u.String()
}
