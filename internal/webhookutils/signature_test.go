package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	header := sign("app-secret", body)

	assert.True(t, ValidateSignature("app-secret", body, header))
	assert.False(t, ValidateSignature("wrong-secret", body, header))
	assert.False(t, ValidateSignature("app-secret", []byte("tampered"), header))
}

func TestValidateSignatureRejectsMalformedHeader(t *testing.T) {
	body := []byte("payload")
	assert.False(t, ValidateSignature("app-secret", body, ""))
	assert.False(t, ValidateSignature("app-secret", body, "md5=abc"))
	assert.False(t, ValidateSignature("", body, sign("", body)))
}
