package hnmp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by connection operations.
var (
	// ErrInvalidHandler is returned when no handler is provided.
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrInvalidState is returned when Dial is called on a connection that is not idle.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrConnectionRefused is returned by Dial when the endpoint actively refused the connection.
	ErrConnectionRefused = errors.New("connection refused")
	// ErrFrameTooLarge is returned when buffered, undecoded bytes exceed the maximum frame size.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrBufferFull is returned when the send queue cannot accept more frames.
	ErrBufferFull = errors.New("send buffer full")
	// ErrProtocol matches every *ProtocolError with errors.Is.
	ErrProtocol = errors.New("protocol violation")
)

// Disconnect reasons reported to Handler.OnSessionTeardown.
const (
	// DefaultDisconnectReason replaces a blank reason.
	DefaultDisconnectReason = "The server or client did not provide a reason for disconnection"
	// ReasonConnectionLost is used for transport and protocol faults.
	ReasonConnectionLost = "Connection Lost"
	// ReasonRemoteClosed is used when the server closes the stream.
	ReasonRemoteClosed = "Connection closed by server"
	// ReasonClientClosed is used by Close.
	ReasonClientClosed = "Client closed the connection"
)

// ProtocolError reports a malformed frame or a message the client cannot handle.
// Protocol errors are fatal for the connection.
type ProtocolError struct {
	Op  string // "decode" or "dispatch"
	Tag string // wire tag, when known
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Tag, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes every ProtocolError match ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func decodeError(tag string, err error) error {
	return &ProtocolError{Op: "decode", Tag: tag, Err: err}
}

func dispatchError(tag string, err error) error {
	return &ProtocolError{Op: "dispatch", Tag: tag, Err: err}
}

// IsProtocolError reports whether err is, or wraps, a protocol fault.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}
