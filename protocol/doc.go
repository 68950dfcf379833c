// Package protocol implements the parsing and serialising of the X11 core
// protocol wire format: the connection handshake, the framing shared by every
// client request, and the fixed-size records the server sends back.
//
// The codec never touches a socket itself. It reads from an io.Reader and
// builds byte slices, the caller owns the stream.
//
// === Byte order
//
// The first byte a client sends picks the order for every multi-byte field
// for the rest of the connection.
//
//   - `B` (0x42) - most significant byte first
//   - `l` (0x6c) - least significant byte first
//
// === Connection setup
//
//	> <order> 0 <major:2> <minor:2> <nameLen:2> <dataLen:2> 0 0 <name> <pad> <data> <pad>
//	< <status:1> ...
//
// Status 1 is followed by the capability announcement (see Setup). Status 0
// (Failed) and 2 (Authenticate) carry a reason string and are returned as a
// *HandshakeRejectedError.
//
// === Requests
//
//	<opcode:1> <data:1> <length:2> <body> <pad>
//
// The length counts 4-byte units of the whole request, header included, and is
// always computed from the assembled bytes (see EncodeRequest). New requests
// only need to implement the Request interface.
//
// === Events and errors
//
// Everything the server sends after setup is a 32 byte record, except replies
// which this package does not request. Byte 0 is the code, its high bit marks
// an event that was sent with SendEvent by another client.
//
//   - 0 - error (ErrorEvent)
//   - 2 - KeyPress (KeyPressEvent)
//   - 12 - Expose (ExposeEvent)
//   - anything else - UnknownEvent, raw bytes preserved
//
// === Resource ids
//
// Windows, graphics contexts and the like are named by ids the client picks
// from the space the server hands out during setup. See IDAllocator.
package protocol
