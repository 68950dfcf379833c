package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrIncompleteMessage        = errors.New("incomplete message, the stream ended before a full field could be read")
	ErrMalformedVendorString    = errors.New("vendor string is not valid text")
	ErrIDSpaceExhausted         = errors.New("there are no more available resource identifiers")
	ErrUnsupportedAuthorization = errors.New("authorization protocols are not supported")
	ErrUnknownByteOrder         = errors.New("unknown byte order")
	ErrInvalidRequestLength     = errors.New("request length is invalid")
	ErrRequestTooLarge          = errors.New("request is larger than the server accepts")
	ErrMalformedRequest         = errors.New("request body does not match its opcode")
)

// TransportError is returned when the underlying stream fails. It is always
// fatal for the connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("x11 %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandshakeRejectedError is returned when the server answers the greeting
// with anything other than Success.
type HandshakeRejectedError struct {
	Status SetupStatus
	Reason string

	// The protocol version the server speaks. Only set for SetupFailed.
	Major uint16
	Minor uint16
}

func (e *HandshakeRejectedError) Error() string {
	if e.Status == SetupFailed {
		return fmt.Sprintf("connection setup %s (server protocol %d.%d): %s",
			e.Status, e.Major, e.Minor, e.Reason)
	}

	return fmt.Sprintf("connection setup %s: %s", e.Status, e.Reason)
}
