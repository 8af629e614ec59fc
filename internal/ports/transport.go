package ports

import "context"

// Transport opens sessions to instruments over the text-command protocol
// and sends queries/writes to them (§4.1, C1). A session is bound to one
// "host/device" address; implementations may pool the underlying
// connection but must serialize requests against a single session (§5
// "different targets within a pass may be queried in any order but are
// serialized per (host, device) session").
type Transport interface {
	// Open establishes a session for address ("host/device" or
	// "host:port/device"). The returned Session is only valid until Close.
	Open(ctx context.Context, address string) (Session, error)
}

// Session is an open channel to one instrument.
type Session interface {
	// Query sends cmd (expected to end in "?") and returns the instrument's
	// reply line without its trailing line terminator.
	Query(ctx context.Context, cmd string) (string, error)

	// Write sends cmd and returns once it has been written; it does not read
	// any reply from the peer.
	Write(ctx context.Context, cmd string) error

	// Close releases the session. Close is idempotent.
	Close() error

	// Address is the "host/device" this session was opened for.
	Address() string
}
