// Package server implements the vm-monitor collection API surface.
//
// Owns:
//   - HTTP routing, handlers, and request/response contracts
//   - The agent authentication gate (HMAC signature verification)
//   - The in-memory agent directory and metrics store
//
// Does not own:
//   - Agent-side metric collection or the signing client
//
// Invariants:
//   - JSON responses are consistent via writeJSON
//   - Mutating agent endpoints require signed requests (RequireAgentAuth)
//   - Signatures are verified against the raw body bytes as transmitted;
//     the body is never re-serialized before verification
//   - Registration is unauthenticated by design: it is the key delivery point
package server
