// Package relayframe encodes and decodes the binary frames peers send through their websocket
// connection to the relay server.
//
// Layout (big endian):
//
//	magic (1) | flag (1) | ipv4 (4) | port (2) | recipient id (8) | payload
//
// A frame whose address and port are all zero asks the relay server to forward the payload to
// the peer connected with the recipient id.
package relayframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const (
	// First byte of every frame
	Magic byte = 0x01
	// Size of the frame header
	HeaderSize = 1 + 1 + 4 + 2 + 8
)

// Frame flag: tells how the frame must be routed.
type Flag byte

const (
	// Send the payload to an IPv4 destination, or to a peer of the relay server when the
	// destination is zero.
	FlagSendToIPv4 Flag = 0x01
)

// Error wrapped by all decoding errors.
var ErrInvalidFrame = errors.New("invalid relay frame")

// Decoded relay frame.
type Frame struct {
	// Routing flag
	Flag Flag
	// Destination IPv4 address. Zero for relayed frames.
	Addr netip.Addr
	// Destination port. Zero for relayed frames.
	Port uint16
	// Recipient peer ID
	ID uint64
	// Frame payload. Shares memory with the decoded buffer.
	Payload []byte
}

// Return true when the frame must be forwarded to the relay server peer identified by ID.
func (frame Frame) IsRelay() bool {
	return frame.Port == 0 && (!frame.Addr.IsValid() || frame.Addr.IsUnspecified())
}

// # Description
//
// Decode a relay frame.
//
// # Returns
//
// The decoded frame or an error which wraps ErrInvalidFrame when the frame is too short, has a
// bad magic number or an unknown flag.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than the %d bytes header", ErrInvalidFrame, len(data), HeaderSize)
	}
	if data[0] != Magic {
		return Frame{}, fmt.Errorf("%w: bad magic number %#02x", ErrInvalidFrame, data[0])
	}
	flag := Flag(data[1])
	switch flag {
	case FlagSendToIPv4:
		return Frame{
			Flag:    flag,
			Addr:    netip.AddrFrom4([4]byte(data[2:6])),
			Port:    binary.BigEndian.Uint16(data[6:8]),
			ID:      binary.BigEndian.Uint64(data[8:16]),
			Payload: data[HeaderSize:],
		}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unsupported flag %#02x", ErrInvalidFrame, byte(flag))
	}
}

// # Description
//
// Encode a frame. An invalid address is encoded as 0.0.0.0.
//
// # Returns
//
// The encoded frame or an error if the address is not an IPv4 address.
func Encode(frame Frame) ([]byte, error) {
	addr := [4]byte{}
	if frame.Addr.IsValid() {
		if !frame.Addr.Unmap().Is4() {
			return nil, fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidFrame, frame.Addr)
		}
		addr = frame.Addr.Unmap().As4()
	}
	flag := frame.Flag
	if flag == 0 {
		flag = FlagSendToIPv4
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(frame.Payload))
	buf[0] = Magic
	buf[1] = byte(flag)
	copy(buf[2:6], addr[:])
	binary.BigEndian.PutUint16(buf[6:8], frame.Port)
	binary.BigEndian.PutUint64(buf[8:16], frame.ID)
	return append(buf, frame.Payload...), nil
}

// Encode a frame which asks the relay server to forward the payload to the peer id.
func EncodeRelay(id uint64, payload []byte) []byte {
	// Zero address cannot fail
	buf, _ := Encode(Frame{Flag: FlagSendToIPv4, ID: id, Payload: payload})
	return buf
}
