package gatewayclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSkew bounds how old a signed webhook may be.
const DefaultMaxSkew = 5 * time.Minute

var (
	ErrNoWebhookSecret  = errors.New("gatewayclient: webhook secret not configured")
	ErrSignatureInvalid = errors.New("gatewayclient: signature mismatch")
)

// Sign computes the hex HMAC-SHA256 the gateway sends over "timestamp.payload".
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates a webhook signature and its timestamp freshness.
// A non-positive maxSkew means DefaultMaxSkew.
func VerifySignature(secret, timestamp, signature string, payload []byte, maxSkew time.Duration, now time.Time) error {
	if secret == "" {
		return ErrNoWebhookSecret
	}
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if timestamp == "" || signature == "" {
		return errors.New("gatewayclient: signature headers missing")
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("gatewayclient: bad signature timestamp: %w", err)
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if skew := now.Sub(time.Unix(sec, 0)).Abs(); skew > maxSkew {
		return fmt.Errorf("gatewayclient: signature is %s old, limit %s", skew.Round(time.Second), maxSkew)
	}
	if !hmac.Equal([]byte(Sign(secret, timestamp, payload)), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
