package mavlink

import "encoding/binary"

// Message ids and enum values for the subset of the common dialect this
// router touches.
const (
	MsgIDHeartbeat        = 0
	MsgIDCommandLong      = 76
	MsgIDCommandAck       = 77
	MsgIDLoggingData      = 266
	MsgIDLoggingDataAcked = 267
	MsgIDLoggingAck       = 268

	CmdLoggingStart = 2510
	CmdLoggingStop  = 2511

	ResultAccepted = 0

	AutopilotPX4 = 12

	CompIDAll = 0
)

// LoggingDataSize is the capacity of one fragment's data field.
const LoggingDataSize = 249

// payloadLength returns the full (untrimmed) payload size for a message
// id, false when the id is not one this router knows.
func payloadLength(msgID uint32) (int, bool) {
	switch msgID {
	case MsgIDHeartbeat:
		return 9, true
	case MsgIDCommandLong:
		return 33, true
	case MsgIDCommandAck:
		return 10, true
	case MsgIDLoggingData, MsgIDLoggingDataAcked:
		return 255, true
	case MsgIDLoggingAck:
		return 4, true
	}
	return 0, false
}

func crcExtra(msgID uint32) (uint8, bool) {
	switch msgID {
	case MsgIDHeartbeat:
		return 50, true
	case MsgIDCommandLong:
		return 152, true
	case MsgIDCommandAck:
		return 143, true
	case MsgIDLoggingData:
		return 193, true
	case MsgIDLoggingDataAcked:
		return 35, true
	case MsgIDLoggingAck:
		return 14, true
	}
	return 0, false
}

type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func DecodeHeartbeat(v View) (Heartbeat, error) {
	var buf [9]byte
	if err := DecodePayload(v, buf[:]); err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(buf[0:4]),
		Type:           buf[4],
		Autopilot:      buf[5],
		BaseMode:       buf[6],
		SystemStatus:   buf[7],
		MavlinkVersion: buf[8],
	}, nil
}

type CommandAck struct {
	Command uint16
	Result  uint8
}

func DecodeCommandAck(v View) (CommandAck, error) {
	var buf [10]byte
	if err := DecodePayload(v, buf[:]); err != nil {
		return CommandAck{}, err
	}
	return CommandAck{
		Command: binary.LittleEndian.Uint16(buf[0:2]),
		Result:  buf[2],
	}, nil
}

type CommandLong struct {
	Params          [7]float32
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

func (m CommandLong) payload() []byte {
	buf := make([]byte, 33)
	for i, p := range m.Params {
		binary.LittleEndian.PutUint32(buf[i*4:], floatBits(p))
	}
	binary.LittleEndian.PutUint16(buf[28:30], m.Command)
	buf[30] = m.TargetSystem
	buf[31] = m.TargetComponent
	buf[32] = m.Confirmation
	return buf
}

// LoggingData is the decoded shape shared by LOGGING_DATA and
// LOGGING_DATA_ACKED.
type LoggingData struct {
	Sequence           uint16
	TargetSystem       uint8
	TargetComponent    uint8
	Length             uint8
	FirstMessageOffset uint8
	Data               [LoggingDataSize]byte
}

func DecodeLoggingData(v View) (LoggingData, error) {
	var buf [255]byte
	if err := DecodePayload(v, buf[:]); err != nil {
		return LoggingData{}, err
	}
	m := LoggingData{
		Sequence:           binary.LittleEndian.Uint16(buf[0:2]),
		TargetSystem:       buf[2],
		TargetComponent:    buf[3],
		Length:             buf[4],
		FirstMessageOffset: buf[5],
	}
	copy(m.Data[:], buf[6:])
	return m, nil
}

type LoggingAck struct {
	Sequence        uint16
	TargetSystem    uint8
	TargetComponent uint8
}

func (m LoggingAck) payload() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], m.Sequence)
	buf[2] = m.TargetSystem
	buf[3] = m.TargetComponent
	return buf
}
