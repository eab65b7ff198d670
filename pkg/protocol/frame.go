// Package protocol defines the broker wire format shared by client and
// tooling: the frame layout, the protocol header exchanged at connection
// start, and the framing errors surfaced to callers.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameEnd is the fixed octet terminating every frame on the wire.
const FrameEnd = 0xCE

// HeaderSize is the size of the fixed frame header preceding the payload.
const HeaderSize = 7

// Frame type octets defined by the protocol.
const (
	FrameMethod    = 1
	FrameHeader    = 2
	FrameBody      = 3
	FrameHeartbeat = 8
)

// DefaultMaxFrameSize bounds the payload length accepted from the wire
// when the transport does not configure its own limit.
const DefaultMaxFrameSize = 128 * 1024

var (
	// ErrFrameTooLarge is returned when a frame's declared payload length
	// exceeds the configured maximum. The payload is never read.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

	// ErrBadFrameEnd is returned when the octet following the payload is
	// not FrameEnd. The connection is unusable afterward.
	ErrBadFrameEnd = errors.New("protocol: invalid frame-end octet")
)

// Frame is a single unit of wire transmission: a fixed header identifying
// the channel and frame type, an opaque payload, and a trailing frame-end
// octet. The transport does not interpret payloads.
type Frame struct {
	Channel uint16
	Type    byte
	Payload []byte
}

// WireSize returns the number of bytes the frame occupies on the wire,
// header and frame-end octet included.
func (f *Frame) WireSize() int {
	return HeaderSize + len(f.Payload) + 1
}

// MarshalTo serializes the frame into buf, which must be exactly
// WireSize() bytes long. Layout: channel (2 bytes big-endian), payload
// length (4 bytes big-endian), type (1 byte), payload, frame-end octet.
func (f *Frame) MarshalTo(buf []byte) error {
	if len(buf) != f.WireSize() {
		return fmt.Errorf("protocol: buffer is %d bytes, frame needs %d", len(buf), f.WireSize())
	}
	binary.BigEndian.PutUint16(buf[0:2], f.Channel)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(f.Payload)))
	buf[6] = f.Type
	copy(buf[HeaderSize:], f.Payload)
	buf[len(buf)-1] = FrameEnd
	return nil
}

// ReadFrame reads one complete frame from r. A declared payload length
// above maxSize fails with ErrFrameTooLarge before any payload byte is
// read; maxSize zero means no limit. A wrong trailing octet fails with
// ErrBadFrameEnd.
func ReadFrame(r io.Reader, maxSize uint32) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	channel := binary.BigEndian.Uint16(header[0:2])
	size := binary.BigEndian.Uint32(header[2:6])
	frameType := header[6]

	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: declared %d bytes, maximum %d", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	var end [1]byte
	if _, err := io.ReadFull(r, end[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame end: %w", err)
	}
	if end[0] != FrameEnd {
		return nil, fmt.Errorf("%w: %#x", ErrBadFrameEnd, end[0])
	}

	return &Frame{Channel: channel, Type: frameType, Payload: payload}, nil
}

// TypeName returns a readable name for a frame type octet, for logging.
func TypeName(t byte) string {
	switch t {
	case FrameMethod:
		return "METHOD"
	case FrameHeader:
		return "HEADER"
	case FrameBody:
		return "BODY"
	case FrameHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}
