package mavlink

import (
	"errors"
	"fmt"
)

const (
	magicV1 = 0xFE
	magicV2 = 0xFD

	headerLenV1 = 6
	headerLenV2 = 10

	checksumLen = 2
)

var (
	ErrTruncatedPayload = errors.New("declared payload length exceeds packet bounds")
	ErrBadMagic         = errors.New("first byte is not a MAVLink v1/v2 magic")
)

// Packet is one already-framed MAVLink packet as handed over by the
// framing layer. Framing and CRC are validated upstream; the bytes are
// not modified after construction.
type Packet struct {
	Data []byte
}

// View is the typed view over a packet buffer. Payload aliases the
// packet's storage and must not be written through. TrimmedZeros is the
// number of trailing zero bytes a v2 sender stripped from the payload;
// decoders that copy into a fixed-size struct zero-pad by that amount.
type View struct {
	MsgID        uint32
	SystemID     uint8
	ComponentID  uint8
	Payload      []byte
	TrimmedZeros uint8
}

// ParseView extracts the typed view from a raw packet. It fails with
// ErrTruncatedPayload when the declared payload length runs past the end
// of the buffer.
func ParseView(pkt *Packet) (View, error) {
	var v View
	buf := pkt.Data
	if len(buf) < headerLenV1 {
		return v, ErrTruncatedPayload
	}
	switch buf[0] {
	case magicV2:
		if len(buf) < headerLenV2 {
			return v, ErrTruncatedPayload
		}
		payloadLen := int(buf[1])
		if headerLenV2+payloadLen > len(buf) {
			return v, fmt.Errorf("v2 payload %d bytes in %d-byte packet: %w", payloadLen, len(buf), ErrTruncatedPayload)
		}
		v.MsgID = uint32(buf[7]) | uint32(buf[8])<<8 | uint32(buf[9])<<16
		v.SystemID = buf[5]
		v.ComponentID = buf[6]
		v.Payload = buf[headerLenV2 : headerLenV2+payloadLen]
		if full, ok := payloadLength(v.MsgID); ok && payloadLen < full {
			v.TrimmedZeros = uint8(full - payloadLen)
		}
		return v, nil
	case magicV1:
		payloadLen := int(buf[1])
		if headerLenV1+payloadLen > len(buf) {
			return v, fmt.Errorf("v1 payload %d bytes in %d-byte packet: %w", payloadLen, len(buf), ErrTruncatedPayload)
		}
		v.MsgID = uint32(buf[5])
		v.SystemID = buf[3]
		v.ComponentID = buf[4]
		v.Payload = buf[headerLenV1 : headerLenV1+payloadLen]
		return v, nil
	default:
		return v, ErrBadMagic
	}
}

// DecodePayload copies a view's payload into dst, zero-filling the
// tail: trailing zeros a v2 sender trimmed, and extension fields a v1
// sender never carried. dst is the full declared size for the message
// id.
func DecodePayload(v View, dst []byte) error {
	if len(v.Payload) > len(dst) {
		return fmt.Errorf("payload %d bytes overflows %d-byte message: %w",
			len(v.Payload), len(dst), ErrTruncatedPayload)
	}
	n := copy(dst, v.Payload)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}
