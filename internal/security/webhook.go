package security

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	WebhookSignatureHeader = "X-Webhook-Hmac"
	WebhookTimestampHeader = "X-Webhook-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrSignatureInvalid = errors.New("webhook signature mismatch")
	ErrTimestampSkew    = errors.New("webhook timestamp outside allowed window")
)

// VerifyWebhook reads the request body and checks the gateway's HMAC-SHA512
// signature and timestamp. The body is restored on r so handlers can read it
// again. An empty secret disables verification.
func VerifyWebhook(r *http.Request, secret string, maxSkew time.Duration, maxBody int64, now time.Time) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBody)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if secret == "" {
		return body, nil
	}

	signature := r.Header.Get(WebhookSignatureHeader)
	if signature == "" {
		return nil, ErrMissingSignature
	}
	timestamp := r.Header.Get(WebhookTimestampHeader)
	if timestamp == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMissingSignature, WebhookTimestampHeader)
	}
	if err := checkSkew(timestamp, maxSkew, now); err != nil {
		return nil, err
	}

	if !hmac.Equal([]byte(SignWebhook(secret, body)), []byte(signature)) {
		return nil, ErrSignatureInvalid
	}
	return body, nil
}

// SignWebhook returns the hex HMAC-SHA512 of body under secret.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// checkSkew accepts unix timestamps in seconds or milliseconds.
func checkSkew(raw string, maxSkew time.Duration, now time.Time) error {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", WebhookTimestampHeader, err)
	}
	var sent time.Time
	if value > 1e12 {
		sent = time.UnixMilli(value)
	} else {
		sent = time.Unix(value, 0)
	}
	if maxSkew <= 0 {
		return nil
	}
	skew := now.Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return ErrTimestampSkew
	}
	return nil
}
