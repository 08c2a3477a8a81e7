package router

import (
	"errors"

	"example.com/ulogsink/internal/mavlink"
)

// ErrNotSupported is returned by endpoints for operations they do not
// implement, such as flushing a queue they do not have.
var ErrNotSupported = errors.New("operation not supported by endpoint")

// Endpoint is the contract the router holds over every attached sink or
// transport. Deliver hands a validated packet to the endpoint and
// returns the number of bytes consumed; endpoints that skip a packet
// still report its full length, so the router never retries.
type Endpoint interface {
	Name() string
	Deliver(pkt *mavlink.Packet) int
	FlushPending() error
	// AcceptsSystem reports whether messages addressed to sysid should
	// be delivered to this endpoint. Zero targets broadcast.
	AcceptsSystem(sysid uint8) bool
}

// Router is the emission side of the endpoint contract: a serialized
// message handed to RouteMsg reaches every endpoint accepting the
// target system id. Transport selection is the router's problem.
type Router interface {
	RouteMsg(buf []byte, targetSysID, senderSysID uint8)
}

// Broker is the in-process router. Single-threaded like the reactor
// that drives it; registration happens before the loop starts.
type Broker struct {
	endpoints []Endpoint
}

func NewBroker() *Broker {
	return &Broker{}
}

func (b *Broker) Add(e Endpoint) {
	b.endpoints = append(b.endpoints, e)
}

// RouteMsg delivers buf to every endpoint that accepts targetSysID.
// A zero target broadcasts. The sender id is not used by the broker and
// is not passed on to endpoints.
func (b *Broker) RouteMsg(buf []byte, targetSysID, senderSysID uint8) {
	pkt := &mavlink.Packet{Data: buf}
	b.Dispatch(pkt, targetSysID)
}

// Dispatch routes an incoming packet to every endpoint accepting
// targetSysID, as given by the caller; the packet bytes are not
// inspected. A zero target broadcasts.
func (b *Broker) Dispatch(pkt *mavlink.Packet, targetSysID uint8) {
	for _, e := range b.endpoints {
		if targetSysID != 0 && !e.AcceptsSystem(targetSysID) {
			continue
		}
		e.Deliver(pkt)
	}
}
