package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"vmmonitor/internal/shared"
)

// TimestampWindowSeconds bounds how far a request timestamp may drift from the
// server clock, in either direction. A drift of exactly the window is still
// accepted. Within the window a captured request/signature pair replays
// cleanly; there is no nonce tracking.
const TimestampWindowSeconds = 300

// SecretResolver is the read side of the agent directory: instance id to
// shared secret. Implementations must be safe for concurrent readers while
// registrations happen; a miss for an in-flight registration is tolerated.
type SecretResolver interface {
	LookupSecret(instanceID string) (string, bool)
}

type RejectReason string

const (
	RejectUnknownInstance      RejectReason = "unknown_instance"
	RejectMalformedTimestamp   RejectReason = "malformed_timestamp"
	RejectTimestampOutOfWindow RejectReason = "timestamp_out_of_window"
	RejectSignatureMismatch    RejectReason = "signature_mismatch"
)

// SignedRequest carries everything one authentication check needs. Body is
// the exact byte sequence read off the wire, never a re-serialized form.
type SignedRequest struct {
	InstanceID string
	Timestamp  string
	Signature  string
	Method     string
	Path       string
	Body       []byte
}

// AuthResult is the gate's verdict. Reason is set only when Authenticated is
// false, and is for logging; responses carry a generic 401 regardless.
type AuthResult struct {
	Authenticated bool
	InstanceID    string
	Reason        RejectReason
}

func authenticated(instanceID string) AuthResult {
	return AuthResult{Authenticated: true, InstanceID: instanceID}
}

func rejected(reason RejectReason) AuthResult {
	return AuthResult{Reason: reason}
}

// Gate authenticates signed agent requests against the directory's secrets.
type Gate struct {
	secrets SecretResolver
	now     func() time.Time
}

func NewGate(secrets SecretResolver) *Gate {
	return &Gate{secrets: secrets, now: time.Now}
}

// Authenticate runs the per-request checks in fixed order: secret lookup,
// timestamp parse, window check, then signature verification. Cheap checks
// run before any hashing so unknown identities cost nothing cryptographic.
func (g *Gate) Authenticate(req SignedRequest) AuthResult {
	secret, ok := g.secrets.LookupSecret(req.InstanceID)
	if !ok {
		return rejected(RejectUnknownInstance)
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil || ts < 0 {
		// negative values are not real unix times, and a large enough one
		// would overflow the drift subtraction below
		return rejected(RejectMalformedTimestamp)
	}

	drift := g.now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > TimestampWindowSeconds {
		return rejected(RejectTimestampOutOfWindow)
	}

	if !shared.Verify(secret, req.Timestamp, req.Signature, req.Method, req.Path, req.Body) {
		return rejected(RejectSignatureMismatch)
	}

	return authenticated(req.InstanceID)
}

type contextKey string

const instanceIDKey contextKey = "instance_id"

// InstanceIDFromContext returns the authenticated instance id set by
// RequireAgentAuth.
func InstanceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(instanceIDKey).(string)
	return id, ok
}

// RequireAgentAuth wraps a handler with the signature check. It reads the raw
// body once, verifies against those exact bytes, then restores r.Body so the
// handler can decode the payload, and stashes the authenticated instance id
// in the request context.
func (a *API) RequireAgentAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := r.Header.Get(shared.HeaderInstanceID)
		ts := r.Header.Get(shared.HeaderTimestamp)
		sig := r.Header.Get(shared.HeaderSignature)

		if instanceID == "" || ts == "" || sig == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing auth headers"})
			return
		}

		body, err := readBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
			return
		}

		res := a.Gate.Authenticate(SignedRequest{
			InstanceID: instanceID,
			Timestamp:  ts,
			Signature:  sig,
			Method:     r.Method,
			Path:       r.URL.Path,
			Body:       body,
		})
		if !res.Authenticated {
			a.Log.Warn("agent auth rejected",
				"reason", string(res.Reason),
				"instance_id", instanceID,
				"path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "authentication failed"})
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r.WithContext(context.WithValue(r.Context(), instanceIDKey, res.InstanceID)))
	}
}
