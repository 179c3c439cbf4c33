package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// VerifySignature checks the webhook signature header against an HMAC-SHA256
// digest of the exact raw request body, base64-encoded the way the platform
// encodes it. An empty secret fails closed: callers must reject the request
// before processing any event.
func VerifySignature(secret string, body []byte, header string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// SignBody computes the signature the platform would send for body. Used by
// tests and local tooling.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
