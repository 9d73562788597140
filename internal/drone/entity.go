package drone

import (
	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/radio"
	"github.com/azaurus1/fanet/internal/routing"
	"github.com/azaurus1/fanet/internal/types"
)

// Entity is the part shared by drones and the depot: buffers, the step clock
// and the link to the radio. The routing engine is attached once the owning
// node exists, since the engine routes on behalf of that node.
type Entity struct {
	addr         types.Addr
	pos          geometry.Point
	commRange    float64
	sensingRange float64
	capacity     int

	buffer         []types.Packet
	output         []types.Packet
	retransmission []types.Packet
	retransIDs     map[uint64]struct{}
	reoffer        map[types.Addr]bool
	now            int

	engine routing.Engine
	radio  *radio.Radio
	sink   metrics.Sink
	cfg    *config.Config
	log    *logrus.Entry
}

func newEntity(cfg *config.Config, addr types.Addr, pos geometry.Point, commRange, sensingRange float64, capacity int, r *radio.Radio, sink metrics.Sink, log *logrus.Entry) *Entity {
	return &Entity{
		addr:         addr,
		pos:          pos,
		commRange:    commRange,
		sensingRange: sensingRange,
		capacity:     capacity,
		retransIDs:   make(map[uint64]struct{}),
		reoffer:      make(map[types.Addr]bool),
		radio:        r,
		sink:         sink,
		cfg:          cfg,
		log:          log,
	}
}

func (e *Entity) Address() types.Addr         { return e.addr }
func (e *Entity) Position() geometry.Point    { return e.pos }
func (e *Entity) CommunicationRange() float64 { return e.commRange }
func (e *Entity) SensingRange() float64       { return e.sensingRange }
func (e *Entity) Now() int                    { return e.now }
func (e *Entity) SetTime(now int)             { e.now = now }
func (e *Entity) Engine() routing.Engine      { return e.engine }
func (e *Entity) full() bool                  { return len(e.buffer) >= e.capacity }
func (e *Entity) BufferLen() int              { return len(e.buffer) }

// Buffer returns the stored packets, oldest first.
func (e *Entity) Buffer() []types.Packet {
	return append([]types.Packet(nil), e.buffer...)
}

// Output returns what will go on the air at the next SendPackets.
func (e *Entity) Output() []types.Packet {
	return append([]types.Packet(nil), e.output...)
}

// Enqueue queues p for transmission this step. Packets without hops left are
// refused and counted.
func (e *Entity) Enqueue(p types.Packet) {
	if p.Head().TTL <= 0 {
		e.sink.TTLDropped()
		e.log.WithFields(logrus.Fields{"packet": p.Head().ID, "kind": p.Kind()}).Debug("refusing packet without ttl")
		return
	}
	e.output = append(e.output, p)
}

// Relay adds p to the retransmission set, once per packet id.
func (e *Entity) Relay(p types.Packet) {
	id := p.Head().ID
	if _, ok := e.retransIDs[id]; ok {
		return
	}
	e.retransIDs[id] = struct{}{}
	e.retransmission = append(e.retransmission, p)
}

func (e *Entity) Acknowledged(id uint64) {
	e.removeWhere(func(p types.Packet) bool { return p.Head().ID == id })
}

func (e *Entity) Reoffer(dst types.Addr) {
	e.reoffer[dst] = true
}

// Purge drops own buffered packets for dst.
func (e *Entity) Purge(dst types.Addr) int {
	return e.removeWhere(func(p types.Packet) bool {
		h := p.Head()
		return h.Src == e.addr && h.Dst == dst
	})
}

func (e *Entity) removeWhere(match func(types.Packet) bool) int {
	kept := e.buffer[:0]
	removed := 0
	for _, p := range e.buffer {
		if match(p) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(e.buffer); i++ {
		e.buffer[i] = nil
	}
	e.buffer = kept
	return removed
}

// Listen hands every packet heard this step to the engine.
func (e *Entity) Listen() {
	for _, p := range e.radio.Listen(e.addr, e.pos, e.commRange, e.now) {
		e.engine.Process(p)
	}
}

// UpdatePackets drops buffered packets whose event deadline has passed.
func (e *Entity) UpdatePackets() {
	expired := e.removeWhere(func(p types.Packet) bool {
		return p.Head().Liveness(e.now) == types.Expired
	})
	for i := 0; i < expired; i++ {
		e.sink.Expired()
	}
	if expired > 0 {
		e.log.WithField("count", expired).Debug("dropped expired packets")
	}
}

// DueForRouting moves broadcast retransmissions straight to the output buffer
// and returns what needs a relay: unicast retransmissions plus own packets
// that are due for their periodic retry or were re-offered.
func (e *Entity) DueForRouting() []types.Packet {
	var due []types.Packet
	for _, p := range e.retransmission {
		if p.Head().DstRelay == types.BroadcastAddr {
			e.Enqueue(p)
			continue
		}
		due = append(due, p)
	}

	interval := e.cfg.Routing.RetransmissionInterval
	for _, p := range e.buffer {
		h := p.Head()
		if h.Src != e.addr {
			continue
		}
		if h.Age(e.now)%interval == 0 || e.reoffer[h.Dst] {
			due = append(due, p.Clone())
		}
	}
	clear(e.reoffer)
	return due
}

// Route runs the engine's periodic control and relay selection for this step.
func (e *Entity) Route() {
	for _, p := range e.engine.RoutingControl(e.now) {
		e.Enqueue(p)
	}

	due := e.DueForRouting()
	if !e.engine.HasNeighbours() {
		return
	}
	for _, p := range due {
		if routed := e.engine.RoutePacket(p); routed != nil {
			e.Enqueue(routed)
		}
	}
}

// SendPackets puts the output buffer on the air, one copy per packet id, and
// resets the per-step buffers.
func (e *Entity) SendPackets() {
	sent := make(map[uint64]struct{}, len(e.output))
	for _, p := range e.output {
		h := p.Head()
		if _, dup := sent[h.ID]; dup {
			continue
		}
		sent[h.ID] = struct{}{}
		h.SrcRelay = e.addr
		e.radio.Send(p, e.pos, e.commRange, e.now)
		e.log.WithFields(logrus.Fields{
			"packet": h.ID,
			"kind":   p.Kind(),
			"to":     h.DstRelay,
		}).Trace("sent")
	}
	e.output = nil
	e.retransmission = nil
	clear(e.retransIDs)
}
