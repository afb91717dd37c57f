package domain

import "errors"

var (
	// ErrNotReady reports a delta that arrived before the book has seen a
	// full load. Such deltas are dropped and counted, never buffered.
	ErrNotReady = errors.New("book is not ready, delta dropped")

	ErrMalformedPriceLevel = errors.New("malformed price level")
)

// ErrorKind classifies feed failures. Transport and protocol failures are
// both non-fatal; they differ only in what the session does next.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindProtocol
	KindState
	KindSink
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindSink:
		return "sink"
	}
	return "unknown"
}

type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return e.Kind.String() + " error: " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func TransportErr(err error) error {
	return &ClassifiedError{Kind: KindTransport, Err: err}
}

func ProtocolErr(err error) error {
	return &ClassifiedError{Kind: KindProtocol, Err: err}
}

func SinkErr(err error) error {
	return &ClassifiedError{Kind: KindSink, Err: err}
}

// KindOf reports the classification of err, defaulting to protocol for
// unclassified errors since those come from message handling.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrNotReady) {
		return KindState
	}
	return KindProtocol
}
