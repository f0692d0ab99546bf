package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hmacHex is the hex HMAC-SHA256 of payload under secret, the scheme Razorpay uses for both
// checkout and webhook signatures.
func hmacHex(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func signPayment(secret, gatewayOrderID, paymentID string) string {
	return hmacHex(secret, []byte(gatewayOrderID+"|"+paymentID))
}

func equalSignature(expected, got string) bool {
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
