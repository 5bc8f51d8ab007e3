package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const signatureScheme = "v1"

// Sign returns the hex encoded HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeSignature signs "<unix timestamp>.<payload>", the string the provider signs.
func ComputeSignature(secret string, timestamp time.Time, payload []byte) string {
	signed := make([]byte, 0, len(payload)+16)
	signed = strconv.AppendInt(signed, timestamp.Unix(), 10)
	signed = append(signed, '.')
	signed = append(signed, payload...)
	return Sign(secret, signed)
}

// SignatureHeader builds a Stripe-Signature header value for payload.
func SignatureHeader(secret string, timestamp time.Time, payload []byte) string {
	return fmt.Sprintf("t=%d,%s=%s", timestamp.Unix(), signatureScheme, ComputeSignature(secret, timestamp, payload))
}
