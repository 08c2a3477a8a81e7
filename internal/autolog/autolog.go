// Package autolog starts flight-stack logging automatically: it watches
// heartbeats from the target system and, once a PX4 autopilot
// identifies itself, brings up the ULog capture endpoint and hands it
// every packet from then on.
package autolog

import (
	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/mavlink"
	"example.com/ulogsink/internal/reactor"
	"example.com/ulogsink/internal/router"
	"example.com/ulogsink/internal/ulog"
)

type Endpoint struct {
	cfg   ulog.Config
	rt    router.Router
	sched *reactor.Scheduler

	events *common.SessionLog
	logger *ulog.Endpoint
	warned bool
}

func New(cfg ulog.Config, rt router.Router, sched *reactor.Scheduler) *Endpoint {
	return &Endpoint{cfg: cfg, rt: rt, sched: sched}
}

// SetSessionLog passes the capture audit trail through to the logger
// this endpoint will create.
func (e *Endpoint) SetSessionLog(l *common.SessionLog) {
	e.events = l
}

func (e *Endpoint) Name() string { return "AutoLog" }

func (e *Endpoint) AcceptsSystem(sysid uint8) bool {
	return sysid == e.cfg.SystemID
}

func (e *Endpoint) FlushPending() error {
	if e.logger != nil {
		return e.logger.FlushPending()
	}
	return router.ErrNotSupported
}

// Logger exposes the capture endpoint once a PX4 heartbeat created it.
func (e *Endpoint) Logger() *ulog.Endpoint {
	return e.logger
}

// Stop tears down the capture session if one was ever started.
func (e *Endpoint) Stop() error {
	if e.logger == nil {
		return nil
	}
	return e.logger.Stop()
}

// Deliver sniffs heartbeats until the autopilot is identified, then
// delegates everything to the capture endpoint.
func (e *Endpoint) Deliver(pkt *mavlink.Packet) int {
	if e.logger != nil {
		return e.logger.Deliver(pkt)
	}

	v, err := mavlink.ParseView(pkt)
	if err != nil {
		return len(pkt.Data)
	}
	if v.MsgID != mavlink.MsgIDHeartbeat || v.SystemID != e.cfg.TargetSystemID {
		return len(pkt.Data)
	}
	hb, err := mavlink.DecodeHeartbeat(v)
	if err != nil {
		common.Warnf("AutoLog: malformed heartbeat: %v", err)
		return len(pkt.Data)
	}

	if hb.Autopilot != mavlink.AutopilotPX4 {
		if !e.warned {
			common.Warnf("AutoLog: autopilot %d is not PX4, cannot start flight stack logging", hb.Autopilot)
			e.warned = true
		}
		return len(pkt.Data)
	}

	logger := ulog.NewEndpoint(e.cfg, e.rt, e.sched)
	logger.SetSessionLog(e.events)
	if err := logger.Start(); err != nil {
		common.Warnf("AutoLog: cannot start capture: %v", err)
		return len(pkt.Data)
	}
	e.logger = logger
	common.Logf("AutoLog: PX4 autopilot detected, capture armed")
	return len(pkt.Data)
}
