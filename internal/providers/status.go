package providers

import (
	"fmt"
	"net/http"

	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

// ClassifyStatus maps a non-2xx provider response to the error taxonomy:
// 401 means the token was rejected, 429 and 5xx are transient, remaining
// 4xx are input problems the user can fix.
func ClassifyStatus(provider string, status int, body string) error {
	if len(body) > 300 {
		body = body[:300] + "..."
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned 401: %s", ErrAuth, provider, body)
	case status == http.StatusTooManyRequests || status >= 500:
		return retry.Transient(fmt.Errorf("%s returned %d: %s", provider, status, body))
	default:
		return Validation("%s rejected the request (%d): %s", provider, status, body)
	}
}
