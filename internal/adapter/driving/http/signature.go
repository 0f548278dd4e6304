package httphandler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the webhook body, keyed with the
// app secret, as "sha256=<hex>".
const SignatureHeader = "X-Hub-Signature-256"

var (
	errSignatureMissing  = errors.New("signature header is required")
	errSignatureMismatch = errors.New("signature verification failed")
)

// verifySignature checks header against the HMAC-SHA256 of body.
func verifySignature(secret, header string, body []byte) error {
	signature := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if signature == "" {
		return errSignatureMissing
	}

	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return errSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return errSignatureMismatch
	}
	return nil
}
