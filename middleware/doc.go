// Package middleware adapts authgate session resolution to net/http.
//
// # Handlers
//
//   - [Attach] resolves the caller's session once per request and stores
//     it in the request context. It never rejects a request.
//   - [Require] rejects requests that carry no attached session with the
//     401 envelope.
//   - [ClientContext] records the client IP and User-Agent for the engine's
//     rate limiter and session metadata.
//
// # What this package must NOT do
//
//   - Touch Redis or the credential store directly (the Engine does I/O).
//   - Decide anything beyond "session present or not".
package middleware
