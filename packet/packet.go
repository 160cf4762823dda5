// Package packet implements the binary framing of the Source-style RCON protocol
// spoken by Project Zomboid servers. A frame is laid out as
//
//	[int32 size][int32 request id][int32 type][body bytes][0x00 0x00]
//
// with every integer little-endian and size counting everything after itself.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// TypeAuth is a client authentication request carrying the password as body.
	TypeAuth int32 = 3

	// TypeAuthResponse is the server's answer to TypeAuth. A request id of
	// AuthFailedID signals rejected credentials.
	TypeAuthResponse int32 = 2

	// TypeExec is a client request carrying a console command as body.
	TypeExec int32 = 2

	// TypeResponseValue is a server packet carrying command output.
	TypeResponseValue int32 = 0
)

// AuthFailedID is the request id a server sends back when authentication fails.
const AuthFailedID int32 = -1

// WrapperSize is the number of bytes counted by the size field besides the
// body: request id and type (8) plus the two terminating NUL bytes (2).
const WrapperSize = 8 + 2

// HeaderSize is the number of bytes preceding the body on the wire.
const HeaderSize = 4 + 4 + 4

// MaxSize bounds the size field accepted by Parse and Read.
const MaxSize = 16 * 1024 * 1024

var (
	// ErrTruncated is returned when fewer bytes are available than the frame declares.
	ErrTruncated = errors.New("packet: truncated")

	// ErrMalformed is returned when the size field or terminator is invalid.
	ErrMalformed = errors.New("packet: malformed")
)

// Packet is one decoded RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Bytes encodes the receiving packet. It is equivalent to Encode(p.ID, p.Type, p.Body).
func (p Packet) Bytes() []byte {
	return Encode(p.ID, p.Type, p.Body)
}

// Encode produces the wire form of a packet. The size field is set to
// len(body)+WrapperSize where len is the UTF-8 byte length. Encode never
// fails: any id and any body are accepted.
//
// Parameters:
//   - id: The request id to correlate the response with
//   - typ: The packet type (TypeAuth, TypeExec, ...)
//   - body: The body text
//
// Returns:
//   - The encoded frame including its size prefix
func Encode(id int32, typ int32, body string) []byte {
	b := make([]byte, HeaderSize+len(body)+2)
	binary.LittleEndian.PutUint32(b[0:4], uint32(int32(len(body)+WrapperSize)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(id))
	binary.LittleEndian.PutUint32(b[8:12], uint32(typ))
	copy(b[HeaderSize:], body)
	return b
}

// Decode reads one packet from b. It is lenient: input shorter than
// HeaderSize, or declaring a size larger than what b holds, yields the zero
// Packet instead of an error. Trailing NUL bytes are stripped from the body
// and invalid UTF-8 sequences are dropped. Use Parse when the caller needs to
// tell an empty packet from an undecodable one.
//
// Parameters:
//   - b: The raw bytes, starting at the size field
//
// Returns:
//   - The decoded packet, or the zero Packet if b cannot be decoded
func Decode(b []byte) Packet {
	if len(b) < HeaderSize {
		return Packet{}
	}

	size := int32(binary.LittleEndian.Uint32(b[0:4]))
	if size < 0 || int64(size)+4 > int64(len(b)) {
		return Packet{}
	}

	p := Packet{
		ID:   int32(binary.LittleEndian.Uint32(b[4:8])),
		Type: int32(binary.LittleEndian.Uint32(b[8:12])),
	}
	if size > 8 {
		p.Body = bodyString(b[HeaderSize : 4+size])
	}

	return p
}

// Parse strictly decodes the first frame in b. Bytes after the frame are
// ignored.
//
// Parameters:
//   - b: The raw bytes, starting at the size field
//
// Returns:
//   - The decoded packet
//   - ErrTruncated if b holds less than the declared frame, ErrMalformed if the
//     size is out of range or the frame is not NUL terminated
func Parse(b []byte) (Packet, error) {
	if len(b) < 4 {
		return Packet{}, fmt.Errorf("%w: have %d bytes, need at least 4", ErrTruncated, len(b))
	}

	size, err := checkSize(b[0:4])
	if err != nil {
		return Packet{}, err
	}

	if len(b)-4 < size {
		return Packet{}, fmt.Errorf("%w: have %d bytes, frame declares %d", ErrTruncated, len(b)-4, size)
	}

	frame := b[4 : 4+size]
	if frame[size-2] != 0 || frame[size-1] != 0 {
		return Packet{}, fmt.Errorf("%w: missing terminator", ErrMalformed)
	}

	return Packet{
		ID:   int32(binary.LittleEndian.Uint32(frame[0:4])),
		Type: int32(binary.LittleEndian.Uint32(frame[4:8])),
		Body: bodyString(frame[8 : size-2]),
	}, nil
}

// Read reads exactly one frame from r. If r fails before any byte of the
// frame arrives, the error from r is returned unchanged (for example io.EOF
// or a deadline error). A failure after part of the frame was consumed is
// wrapped with ErrTruncated, since the stream can no longer be framed.
//
// Parameters:
//   - r: The reader to consume the frame from
//
// Returns:
//   - The decoded packet
//   - An error if reading or parsing fails
func Read(r io.Reader) (Packet, error) {
	var prefix [4]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		if n == 0 {
			return Packet{}, err
		}

		return Packet{}, fmt.Errorf("%w: size prefix: %w", ErrTruncated, err)
	}

	size, err := checkSize(prefix[:])
	if err != nil {
		return Packet{}, err
	}

	frame := make([]byte, 4+size)
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return Packet{}, fmt.Errorf("%w: frame body: %w", ErrTruncated, err)
	}

	return Parse(frame)
}

// Write encodes p and writes it to w in a single call.
//
// Parameters:
//   - w: The writer to send the frame to
//   - p: The packet to send
//
// Returns:
//   - An error if the write fails
func Write(w io.Writer, p Packet) error {
	_, err := w.Write(p.Bytes())
	return err
}

// checkSize validates a little-endian size prefix.
func checkSize(prefix []byte) (int, error) {
	size := int32(binary.LittleEndian.Uint32(prefix))
	if size < WrapperSize {
		return 0, fmt.Errorf("%w: size %d below minimum %d", ErrMalformed, size, WrapperSize)
	}

	if size > MaxSize {
		return 0, fmt.Errorf("%w: size %d above maximum %d", ErrMalformed, size, MaxSize)
	}

	return int(size), nil
}

func bodyString(b []byte) string {
	return strings.ToValidUTF8(strings.TrimRight(string(b), "\x00"), "")
}
