package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// extractAuthor extracts the actor from oauth2-proxy headers, for
// control-plane endpoints sitting behind the same proxy as the dashboard.
// Priority: X-Forwarded-User > X-Forwarded-Email > "api-client"
func extractAuthor(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	return "api-client"
}

// verifyWebhookSignature validates GitHub's HMAC-SHA256 delivery signature
// (the X-Hub-Signature-256 header) against the shared webhook secret. A
// missing or malformed signature is treated as invalid rather than panicking.
func verifyWebhookSignature(secret []byte, signature string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return false
	}

	sigBytes, err := hex.DecodeString(signature[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(sigBytes, expected)
}
