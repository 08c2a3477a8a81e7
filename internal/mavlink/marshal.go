package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

func floatBits(f float32) uint32 {
	return math.Float32bits(f)
}

// Encoder frames outgoing messages as MAVLink v2 packets. It keeps the
// per-link sequence counter; not safe for concurrent use.
type Encoder struct {
	SystemID    uint8
	ComponentID uint8
	seq         uint8
}

// frame builds a complete v2 packet around payload, trimming trailing
// zero bytes as the protocol allows. The first payload byte is always
// kept.
func (e *Encoder) frame(msgID uint32, payload []byte) ([]byte, error) {
	extra, ok := crcExtra(msgID)
	if !ok {
		return nil, fmt.Errorf("no crc extra for message id %d", msgID)
	}
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	pkt := make([]byte, headerLenV2+n+checksumLen)
	pkt[0] = magicV2
	pkt[1] = uint8(n)
	pkt[2] = 0 // incompat flags
	pkt[3] = 0 // compat flags
	pkt[4] = e.seq
	pkt[5] = e.SystemID
	pkt[6] = e.ComponentID
	pkt[7] = uint8(msgID)
	pkt[8] = uint8(msgID >> 8)
	pkt[9] = uint8(msgID >> 16)
	copy(pkt[headerLenV2:], payload[:n])

	crc := crcCalculate(pkt[1 : headerLenV2+n])
	crc = crcAccumulate(extra, crc)
	binary.LittleEndian.PutUint16(pkt[headerLenV2+n:], crc)

	e.seq++
	return pkt, nil
}

func (e *Encoder) EncodeCommandLong(m CommandLong) ([]byte, error) {
	return e.frame(MsgIDCommandLong, m.payload())
}

func (e *Encoder) EncodeLoggingAck(m LoggingAck) ([]byte, error) {
	return e.frame(MsgIDLoggingAck, m.payload())
}
