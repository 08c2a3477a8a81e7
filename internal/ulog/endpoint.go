package ulog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/mavlink"
	"example.com/ulogsink/internal/reactor"
	"example.com/ulogsink/internal/router"
)

// ULog file layout: 7-byte magic, version byte, 8-byte timestamp. The
// 16 bytes together form the file header; everything after is records.
var ulogMagic = []byte{0x55, 0x4C, 0x6F, 0x67, 0x01, 0x12, 0x35}

const (
	ulogHeaderLen = 16

	startRetryInterval = time.Second
)

var (
	// ErrIoOpen reports that the output file could not be created.
	ErrIoOpen = errors.New("cannot open output log file")

	// ErrNotIdle reports a start attempt on an already active session.
	ErrNotIdle = errors.New("capture session already active")
)

// State is the capture lifecycle position.
type State int

const (
	StateIdle State = iota
	StateArming
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateCapturing:
		return "capturing"
	}
	return "unknown"
}

// Config carries the construction-time knobs for a capture endpoint.
type Config struct {
	// LogsDir receives the timestamped .ulg files.
	LogsDir string
	// SystemID identifies this router in outgoing commands and acks.
	SystemID uint8
	// TargetSystemID is the vehicle the endpoint commands.
	TargetSystemID uint8
}

type logFile interface {
	io.Writer
	Sync() error
	Close() error
}

// Endpoint captures the PX4 ULog stream fragments the router delivers
// to it and writes a byte-exact .ulg file. One capture session at a
// time; all methods run on the reactor thread.
type Endpoint struct {
	cfg   config
	rt    router.Router
	sched *reactor.Scheduler
	enc   mavlink.Encoder

	metrics *common.Metrics
	events  *common.SessionLog

	state      State
	file       logFile
	filePath   string
	startTimer *reactor.Timer

	seq                   SequenceTracker
	rb                    Reassembly
	waitingHeader         bool
	waitingFirstMsgOffset bool
	corrupt               bool

	openFile func(path string) (logFile, error)
	now      func() time.Time
}

type config struct {
	logsDir        string
	systemID       uint8
	targetSystemID uint8
}

// NewEndpoint builds an idle capture endpoint. The router reference is
// the only shared state and is read-only after construction.
func NewEndpoint(cfg Config, rt router.Router, sched *reactor.Scheduler) *Endpoint {
	e := &Endpoint{
		cfg: config{
			logsDir:        cfg.LogsDir,
			systemID:       cfg.SystemID,
			targetSystemID: cfg.TargetSystemID,
		},
		rt:       rt,
		sched:    sched,
		enc:      mavlink.Encoder{SystemID: cfg.SystemID, ComponentID: 1},
		metrics:  common.NewMetrics(),
		openFile: openNonBlocking,
		now:      time.Now,
	}
	return e
}

// SetSessionLog attaches the JSONL capture audit trail.
func (e *Endpoint) SetSessionLog(l *common.SessionLog) {
	e.events = l
}

func openNonBlocking(path string) (logFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|syscall.O_NONBLOCK, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *Endpoint) Name() string { return "ULog" }

func (e *Endpoint) AcceptsSystem(sysid uint8) bool {
	return sysid == e.cfg.systemID
}

// FlushPending is part of the endpoint contract; this endpoint keeps no
// outbound queue.
func (e *Endpoint) FlushPending() error {
	return router.ErrNotSupported
}

// State reports the lifecycle position, for statistics surfaces.
func (e *Endpoint) State() State { return e.state }

// FilePath is the output path of the active (or last) session.
func (e *Endpoint) FilePath() string { return e.filePath }

// Metrics exposes the per-capture counters.
func (e *Endpoint) Metrics() *common.Metrics { return e.metrics }

// Start opens a new capture session: creates the output file, resets
// the stream state and arms the 1 s LOGGING_START retry timer. The
// first command goes out on the next scheduler pass.
func (e *Endpoint) Start() error {
	if e.state != StateIdle {
		return fmt.Errorf("state %s: %w", e.state, ErrNotIdle)
	}

	path := filepath.Join(e.cfg.logsDir, e.now().Format("2006-01-02_15-04-05")+".ulg")
	f, err := e.openFile(path)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", path, err, ErrIoOpen)
	}

	e.file = f
	e.filePath = path
	e.seq.Reset()
	e.rb.Reset()
	e.waitingHeader = true
	e.waitingFirstMsgOffset = false
	e.corrupt = false
	e.state = StateArming
	e.metrics.Start()

	e.startTimer = e.sched.AddPeriodic(startRetryInterval, e.sendLoggingStart)

	common.Logf("ULog: capture session started, writing %s", path)
	e.logEvent("start", 0, "")
	return nil
}

// Stop ends the session: tells the vehicle to stop streaming, cancels
// the retry timer and closes the file. Stopping an idle endpoint only
// warns.
func (e *Endpoint) Stop() error {
	if e.state == StateIdle {
		common.Warnf("ULog: stop requested but no capture session is active")
		return nil
	}

	e.sendCommand(mavlink.CmdLoggingStop)
	e.cancelStartTimer()

	var firstErr error
	if err := e.file.Sync(); err != nil && !wouldBlock(err) {
		firstErr = fmt.Errorf("sync %s: %w", e.filePath, err)
	}
	if err := e.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %s: %w", e.filePath, err)
	}
	e.file = nil
	e.state = StateIdle
	e.metrics.Stop()

	common.Logf("ULog: capture session stopped, %s", e.filePath)
	e.logEvent("stop", 0, "")
	return firstErr
}

// Deliver accepts one routed packet. It always reports the packet as
// consumed; malformed payloads are skipped with a warning because the
// router has no use for an error from a log sink.
func (e *Endpoint) Deliver(pkt *mavlink.Packet) int {
	v, err := mavlink.ParseView(pkt)
	if err != nil {
		common.Warnf("ULog: dropping undecodable packet: %v", err)
		return len(pkt.Data)
	}

	switch v.MsgID {
	case mavlink.MsgIDCommandAck:
		e.handleCommandAck(v)
	case mavlink.MsgIDLoggingData:
		e.handleLoggingData(v, false)
	case mavlink.MsgIDLoggingDataAcked:
		e.handleLoggingData(v, true)
	}
	return len(pkt.Data)
}

func (e *Endpoint) handleCommandAck(v mavlink.View) {
	if e.state != StateArming {
		return
	}
	ack, err := mavlink.DecodeCommandAck(v)
	if err != nil {
		common.Warnf("ULog: malformed COMMAND_ACK: %v", err)
		return
	}
	if ack.Command != mavlink.CmdLoggingStart {
		return
	}
	if ack.Result != mavlink.ResultAccepted {
		common.Warnf("ULog: LOGGING_START rejected with result %d, retrying", ack.Result)
		return
	}
	e.cancelStartTimer()
	e.state = StateCapturing
	common.Logf("ULog: vehicle accepted LOGGING_START")
}

func (e *Endpoint) handleLoggingData(v mavlink.View, acked bool) {
	if e.state == StateIdle {
		return
	}
	msg, err := mavlink.DecodeLoggingData(v)
	if err != nil {
		common.Warnf("ULog: malformed logging data: %v", err)
		return
	}

	// The vehicle expects an ack for every reliable fragment received,
	// including ones the tracker will discard as retransmits.
	if acked {
		e.sendLoggingAck(msg.Sequence)
	}

	accept, dropGap := e.seq.Track(msg.Sequence)
	if !accept {
		e.metrics.IncRetransmit()
		return
	}

	if e.corrupt {
		return
	}

	var contributed int64
	defer func() {
		if contributed > 0 {
			e.metrics.AddFragment(contributed)
		}
	}()

	length := int(msg.Length)
	if length > mavlink.LoggingDataSize {
		common.Warnf("ULog: fragment length %d exceeds data capacity, discarding", length)
		return
	}
	data := msg.Data[:length]

	if e.waitingHeader {
		if length < len(ulogMagic) || !bytes.Equal(data[:len(ulogMagic)], ulogMagic) {
			common.Warnf("ULog: bad magic in header fragment seq %d, still waiting for header", msg.Sequence)
			return
		}
		if length < ulogHeaderLen {
			common.Warnf("ULog: header fragment too short (%d bytes)", length)
			return
		}
		if err := e.rb.WriteDirect(e.file, data[:ulogHeaderLen]); err != nil {
			e.handleFlushError(err)
			return
		}
		data = data[ulogHeaderLen:]
		length -= ulogHeaderLen
		e.waitingHeader = false
		contributed += ulogHeaderLen
		common.Logf("ULog: file header received")
		e.logEvent("header", msg.Sequence, "")
	}

	if dropGap {
		if err := e.rb.FlushTo(e.file); err != nil {
			e.handleFlushError(err)
		}
		e.rb.Reset()
		e.waitingFirstMsgOffset = true
		e.metrics.IncDrop()
		e.logEvent("drop", msg.Sequence, "")
	}

	if !e.rb.Fits(length) {
		e.rb.Reset()
		e.waitingFirstMsgOffset = true
		common.Warnf("ULog: reassembly overflow at seq %d, resynchronising", msg.Sequence)
		e.logEvent("overflow", msg.Sequence, "")
	}

	start := 0
	if e.waitingFirstMsgOffset {
		if msg.FirstMessageOffset == 255 {
			return
		}
		if int(msg.FirstMessageOffset) >= length {
			common.Warnf("ULog: first message offset %d beyond fragment length %d", msg.FirstMessageOffset, length)
			return
		}
		start = int(msg.FirstMessageOffset)
		e.waitingFirstMsgOffset = false
	}

	if start >= length {
		return
	}
	if err := e.rb.Append(data[start:length]); err != nil {
		e.waitingFirstMsgOffset = true
		common.Warnf("ULog: reassembly overflow on append at seq %d", msg.Sequence)
		e.logEvent("overflow", msg.Sequence, "")
		return
	}
	contributed += int64(length - start)

	if err := e.rb.FlushTo(e.file); err != nil {
		e.handleFlushError(err)
	}
}

func (e *Endpoint) handleFlushError(err error) {
	if errors.Is(err, ErrCorrupt) {
		e.corrupt = true
		common.Warnf("ULog: %v; no further writes this session", err)
		e.logEvent("corrupt", 0, err.Error())
		return
	}
	common.Warnf("ULog: write failed: %v", err)
	e.logEvent("write-error", 0, err.Error())
}

func (e *Endpoint) sendLoggingStart() bool {
	e.sendCommand(mavlink.CmdLoggingStart)
	return e.state == StateArming
}

func (e *Endpoint) sendCommand(cmd uint16) {
	buf, err := e.enc.EncodeCommandLong(mavlink.CommandLong{
		Command:         cmd,
		TargetSystem:    e.cfg.targetSystemID,
		TargetComponent: mavlink.CompIDAll,
	})
	if err != nil {
		common.Warnf("ULog: encode command %d: %v", cmd, err)
		return
	}
	e.rt.RouteMsg(buf, e.cfg.targetSystemID, e.cfg.systemID)
}

func (e *Endpoint) sendLoggingAck(seq uint16) {
	buf, err := e.enc.EncodeLoggingAck(mavlink.LoggingAck{
		Sequence:        seq,
		TargetSystem:    e.cfg.targetSystemID,
		TargetComponent: mavlink.CompIDAll,
	})
	if err != nil {
		common.Warnf("ULog: encode LOGGING_ACK: %v", err)
		return
	}
	e.rt.RouteMsg(buf, e.cfg.targetSystemID, e.cfg.systemID)
	e.metrics.IncAck()
}

func (e *Endpoint) cancelStartTimer() {
	if e.startTimer != nil {
		e.sched.Cancel(e.startTimer)
		e.startTimer = nil
	}
}

func (e *Endpoint) logEvent(event string, seq uint16, detail string) {
	if e.events == nil {
		return
	}
	if err := e.events.Append(common.SessionEvent{
		Event:    event,
		File:     filepath.Base(e.filePath),
		Sequence: seq,
		Detail:   detail,
	}); err != nil {
		common.Warnf("ULog: session log append: %v", err)
	}
}
