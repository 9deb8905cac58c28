// Package session implements the versioned streaming session protocol:
// per-session sequencing and flow control, the bounded replay buffer,
// resume with snapshot and replay, heartbeats, and the registry that owns
// session lifecycles.
package session
