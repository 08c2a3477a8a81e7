package mavlink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestParseViewV1(t *testing.T) {
	payload := []byte{0x12, 0x34, 0x00}
	buf := append([]byte{magicV1, uint8(len(payload)), 7, 2, 1, MsgIDCommandAck}, payload...)
	buf = append(buf, 0xAA, 0xBB) // checksum bytes, opaque here

	v, err := ParseView(&Packet{Data: buf})
	if err != nil {
		t.Fatalf("ParseView failed: %v", err)
	}
	if v.MsgID != MsgIDCommandAck {
		t.Fatalf("MsgID = %d, want %d", v.MsgID, MsgIDCommandAck)
	}
	if v.SystemID != 2 || v.ComponentID != 1 {
		t.Fatalf("ids = %d/%d, want 2/1", v.SystemID, v.ComponentID)
	}
	if v.TrimmedZeros != 0 {
		t.Fatalf("TrimmedZeros = %d, want 0 for v1", v.TrimmedZeros)
	}
	if !bytes.Equal(v.Payload, payload) {
		t.Fatalf("payload mismatch: %x", v.Payload)
	}
	// v1 carries no extension fields; decode must zero-fill them.
	ack, err := DecodeCommandAck(v)
	if err != nil {
		t.Fatalf("DecodeCommandAck on v1 payload: %v", err)
	}
	if ack.Command != 0x3412 || ack.Result != 0 {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestParseViewV2TrimmedZeros(t *testing.T) {
	// COMMAND_ACK declares 10 payload bytes; sender trimmed down to 3.
	payload := []byte{0xCE, 0x09, 0x00}
	buf := []byte{magicV2, uint8(len(payload)), 0, 0, 5, 1, 1, MsgIDCommandAck, 0, 0}
	buf = append(buf, payload...)
	buf = append(buf, 0x00, 0x00)

	v, err := ParseView(&Packet{Data: buf})
	if err != nil {
		t.Fatalf("ParseView failed: %v", err)
	}
	if v.MsgID != MsgIDCommandAck {
		t.Fatalf("MsgID = %d, want %d", v.MsgID, MsgIDCommandAck)
	}
	if v.TrimmedZeros != 7 {
		t.Fatalf("TrimmedZeros = %d, want 7", v.TrimmedZeros)
	}
	ack, err := DecodeCommandAck(v)
	if err != nil {
		t.Fatalf("DecodeCommandAck failed: %v", err)
	}
	if ack.Command != CmdLoggingStart || ack.Result != ResultAccepted {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestParseViewTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "short v1 header", buf: []byte{magicV1, 1, 0}},
		{name: "short v2 header", buf: []byte{magicV2, 1, 0, 0, 0, 0, 0, 0}},
		{name: "v1 payload overrun", buf: []byte{magicV1, 200, 0, 1, 1, 0, 0x55}},
		{name: "v2 payload overrun", buf: []byte{magicV2, 50, 0, 0, 0, 1, 1, 0, 0, 0, 0x55}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseView(&Packet{Data: tc.buf}); !errors.Is(err, ErrTruncatedPayload) {
				t.Fatalf("expected ErrTruncatedPayload, got %v", err)
			}
		})
	}
}

func TestParseViewBadMagic(t *testing.T) {
	if _, err := ParseView(&Packet{Data: []byte{0x42, 0, 0, 0, 0, 0}}); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeLoggingDataZeroPadded(t *testing.T) {
	full := make([]byte, 255)
	binary.LittleEndian.PutUint16(full[0:2], 0x1234)
	full[2] = 2   // target_system
	full[3] = 0   // target_component
	full[4] = 40  // length
	full[5] = 255 // first_message_offset
	for i := 0; i < 40; i++ {
		full[6+i] = byte(i + 1)
	}
	// Sender trims the untouched tail of data[].
	trimmed := full[:6+40]

	buf := []byte{magicV2, uint8(len(trimmed)), 0, 0, 9, 1, 1, uint8(MsgIDLoggingData & 0xFF), uint8(MsgIDLoggingData >> 8), 0}
	buf = append(buf, trimmed...)
	buf = append(buf, 0x00, 0x00)

	v, err := ParseView(&Packet{Data: buf})
	if err != nil {
		t.Fatalf("ParseView failed: %v", err)
	}
	msg, err := DecodeLoggingData(v)
	if err != nil {
		t.Fatalf("DecodeLoggingData failed: %v", err)
	}
	if msg.Sequence != 0x1234 || msg.Length != 40 || msg.FirstMessageOffset != 255 {
		t.Fatalf("decoded = %+v", msg)
	}
	if msg.Data[0] != 1 || msg.Data[39] != 40 {
		t.Fatalf("data head/tail = %d/%d", msg.Data[0], msg.Data[39])
	}
	for i := 40; i < LoggingDataSize; i++ {
		if msg.Data[i] != 0 {
			t.Fatalf("data[%d] = %d, want zero padding", i, msg.Data[i])
		}
	}
}
