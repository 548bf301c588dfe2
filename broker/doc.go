// Package broker mediates every message agents exchange and keeps a log of them.
//
// Three delivery modes are offered:
//
//   - SendSync delivers to the recipient's mailbox before returning, a
//     completed round-trip from the sender's point of view
//   - SendAsync only enqueues; ProcessQueue drains at most N messages per call
//     in FIFO order, so the queue grows until someone processes it
//   - Publish fans a message out to every handler subscribed to a topic,
//     synchronously and in registration order; the first handler error stops
//     the fan-out and is returned to the publisher
//
// The broker is safe for concurrent use, and handlers and mailboxes are always
// invoked without internal locks held, so they may send messages themselves.
package broker
