// Package signature verifies the HMAC-SHA256 signatures the payment gateway
// attaches to checkout callbacks and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the expected HMAC in constant time.
// Malformed hex, an empty secret and an empty signature never verify.
func Verify(payload []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}

// PaymentPayload is the string the gateway signs for a checkout callback.
func PaymentPayload(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// VerifyPayment checks a checkout callback signature, signed with the API key secret.
func VerifyPayment(orderID, paymentID, signature, keySecret string) bool {
	return Verify(PaymentPayload(orderID, paymentID), keySecret, signature)
}

// VerifyWebhook checks a webhook signature over the raw request body. The body
// must not be re-encoded before calling this.
func VerifyWebhook(body []byte, signature, webhookSecret string) bool {
	return Verify(body, webhookSecret, signature)
}
