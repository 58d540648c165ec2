// Package notify delivers one-time codes to users off the request path.
//
// # Dispatcher
//
// [Dispatcher] owns a buffered queue and a fixed pool of workers. Enqueue
// never waits on the transport: with DropIfFull set a full queue drops
// the delivery and counts it, otherwise Enqueue blocks until there is
// room, the caller's context ends, or the dispatcher closes. Each send
// runs under its own timeout; failures are logged and reported to the
// OnFailure hook, never to the request that issued the code.
//
// Close stops intake, drains what is queued and waits for the workers.
//
// # What this package must NOT do
//
//   - Log codes.
//   - Retry sends; a user can request a new code.
package notify
