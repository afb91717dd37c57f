package domain

// Result of handing one raw frame to a feed adapter.
type Result int

const (
	// NoOp: the frame was recognized but changed nothing (keepalive,
	// greeting, ack).
	NoOp Result = iota
	// Applied: the frame mutated the book.
	Applied
	// Failed: the frame could not be decoded or applied.
	Failed
)

func (r Result) String() string {
	switch r {
	case NoOp:
		return "noop"
	case Applied:
		return "applied"
	}
	return "failed"
}

// ReplyFunc sends a frame back on the connection the message arrived on.
// Adapters use it to answer venue keepalive handshakes.
type ReplyFunc func(payload []byte) error

// FeedAdapter translates one venue's raw wire messages into book
// operations. An adapter owns exactly one book and is the only writer to it;
// the session guarantees OnMessage is never called concurrently.
type FeedAdapter interface {
	Venue() string

	// SubscribeFrames returns the frames the session must send right after
	// a connection is established.
	SubscribeFrames() ([][]byte, error)

	// OnMessage decodes raw and applies it to the book. Errors are
	// protocol-level: the message is dropped and the session carries on.
	OnMessage(raw []byte, reply ReplyFunc) (Result, error)

	// Reset is called on every disconnect, before a reconnect is scheduled.
	Reset()
}
