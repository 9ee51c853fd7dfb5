package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ValidateSignature checks the X-Hub-Signature-256 header Meta sends with
// webhook deliveries: "sha256=" followed by the hex HMAC-SHA256 of the raw
// body keyed with the app secret. Comparison is constant time.
func ValidateSignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" || header == "" {
		return false
	}

	expected := strings.TrimPrefix(header, "sha256=")
	if expected == header {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(strings.ToLower(expected)))
}
