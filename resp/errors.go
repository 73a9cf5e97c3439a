package resp

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// Decode errors form a small taxonomy. The session layer keys its recovery
// policy off these values with errors.Is: ErrEOF and ErrFatalNetwork end a
// session, everything else is reported to the client and the session
// continues.
var (
	// ErrEOF is returned when the stream is cleanly closed at a frame
	// boundary.
	ErrEOF = errors.New("end of stream")

	// ErrIncomplete is returned on a short read in the middle of a frame.
	ErrIncomplete = errors.New("incomplete frame")

	// ErrInvalid is returned when a protocol rule is violated: a missing
	// CR, a bad boolean payload, a non-empty null, a length mismatch.
	ErrInvalid = errors.New("invalid frame")

	// ErrUnknownKind is returned when the first byte of a frame is not a
	// recognized marker.
	ErrUnknownKind = errors.New("unknown frame kind")

	// ErrNotInteger is returned when an integer payload fails numeric
	// conversion.
	ErrNotInteger = errors.New("frame payload is not an integer")

	// ErrFatalNetwork is returned on connection-level failures after which
	// the stream can no longer carry traffic.
	ErrFatalNetwork = errors.New("fatal network error")

	// ErrIO is returned on any IO failure not covered above.
	ErrIO = errors.New("io error")

	// ErrSyntax flags API misuse, such as handing an aggregate frame to a
	// leaf decoder. It indicates a programming error, not bad input.
	ErrSyntax = errors.New("syntax")
)

// IsFatal reports whether err ends a session: either the peer is gone
// (clean EOF) or the connection can no longer carry traffic.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEOF) || errors.Is(err, ErrFatalNetwork)
}

// classifyIO maps a transport error to the decode taxonomy. atBoundary
// distinguishes a clean close between frames from a close that truncates
// one.
func classifyIO(err error, atBoundary bool) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		if atBoundary {
			return ErrEOF
		}
		return ErrIncomplete
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENOTCONN):
		return ErrFatalNetwork
	default:
		return ErrIO
	}
}
