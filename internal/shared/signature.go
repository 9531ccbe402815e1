package shared

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrBodyNotUTF8 is returned when a request body cannot be treated as text.
// The canonical message is a UTF-8 string, so a non-UTF-8 body can never have
// been signed by a well-behaved agent.
var ErrBodyNotUTF8 = errors.New("request body is not valid UTF-8")

// GenerateAPIKey returns a fresh 256-bit shared secret, base64-encoded.
// The agent generates this once at init and sends it during registration.
func GenerateAPIKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// signature covers: timestamp + METHOD + path + raw body
func canonicalMessage(timestamp, method, path string, body []byte) string {
	return timestamp + "\n" + strings.ToUpper(method) + "\n" + path + "\n" + string(body)
}

// ComputeSignature returns the raw 32-byte HMAC-SHA256 MAC over the canonical
// message. The timestamp is taken in string form so signer and verifier hash
// byte-identical input. The path must not include a query string.
func ComputeSignature(secret, timestamp, method, path string, body []byte) ([]byte, error) {
	if !utf8.Valid(body) {
		return nil, ErrBodyNotUTF8
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalMessage(timestamp, method, path, body)))
	return mac.Sum(nil), nil
}

// Sign computes the request signature in the base64 form carried on the wire.
func Sign(secret, timestamp, method, path string, body []byte) (string, error) {
	sig, err := ComputeSignature(secret, timestamp, method, path, body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify recomputes the expected signature and compares it against the claimed
// one in constant time. Any failure, including a non-UTF-8 body, is reported
// as false rather than an error.
func Verify(secret, timestamp, signatureB64, method, path string, body []byte) bool {
	expected, err := ComputeSignature(secret, timestamp, method, path, body)
	if err != nil {
		return false
	}
	expectedB64 := base64.StdEncoding.EncodeToString(expected)
	return hmac.Equal([]byte(expectedB64), []byte(signatureB64))
}
