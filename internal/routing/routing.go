package routing

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

// Host is the node an engine routes for.
type Host interface {
	Address() types.Addr
	Position() geometry.Point
	Speed() float64
	NextTarget() geometry.Point
	Now() int

	// Enqueue queues p for transmission this step.
	Enqueue(p types.Packet)
	// Relay hands p, addressed to someone else, to the retransmission set.
	Relay(p types.Packet)
	// Accept stores a data packet addressed to this node and reports whether
	// it should be acknowledged.
	Accept(d *types.Data) bool
	// Acknowledged drops the buffered packet with the given id.
	Acknowledged(id uint64)
	// Reoffer schedules own packets for dst for routing this step.
	Reoffer(dst types.Addr)
	// Purge drops own packets for dst and returns how many were dropped.
	Purge(dst types.Addr) int
}

// Engine is the contract every routing protocol implements.
type Engine interface {
	RelaySelection(p types.Packet) (types.Addr, bool)
	Process(p types.Packet)
	RoutingControl(now int) []types.Packet
	RoutePacket(p types.Packet) types.Packet
	HasNeighbours() bool
	ShouldForward(p types.Packet) bool
	MakeData(ev *types.Event) *types.Data
	MakeAck(d *types.Data) *types.Ack
	Neighbours() []NeighbourNode
}

// New builds the engine selected by cfg.Routing.Protocol.
func New(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry) (Engine, error) {
	switch cfg.Routing.Protocol {
	case config.ProtocolAODV:
		return NewAODV(cfg, host, sink, log), nil
	case config.ProtocolOLSR:
		return NewOLSR(cfg, host, sink, log), nil
	case config.ProtocolGeo:
		return NewGeo(cfg, host, sink, log), nil
	case config.ProtocolRandom:
		return NewRandom(cfg, host, sink, log), nil
	}
	return nil, fmt.Errorf("%w: unsupported routing protocol %q", config.ErrInvalid, cfg.Routing.Protocol)
}

// NeighbourNode is what a node knows about a neighbour from its last hello.
type NeighbourNode struct {
	Addr       types.Addr
	LastSeen   int
	Pos        geometry.Point
	NextTarget geometry.Point
	Speed      float64
}

// base holds what every protocol shares: the neighbour table, hello cadence
// and the data/ack handling.
type base struct {
	cfg        *config.Config
	host       Host
	sink       metrics.Sink
	log        *logrus.Entry
	neighbours map[types.Addr]NeighbourNode
}

func newBase(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry, protocol string) base {
	return base{
		cfg:        cfg,
		host:       host,
		sink:       sink,
		log:        logging.Component(log, protocol, logrus.Fields{"addr": host.Address()}),
		neighbours: make(map[types.Addr]NeighbourNode),
	}
}

func (b *base) HasNeighbours() bool {
	return len(b.neighbours) > 0
}

// Neighbours returns the table sorted by address.
func (b *base) Neighbours() []NeighbourNode {
	out := make([]NeighbourNode, 0, len(b.neighbours))
	for _, n := range b.neighbours {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func (b *base) neighbourAddrs() []types.Addr {
	addrs := make([]types.Addr, 0, len(b.neighbours))
	for a := range b.neighbours {
		addrs = append(addrs, a)
	}
	sortAddrs(addrs)
	return addrs
}

func (b *base) processHello(h *types.Hello) {
	b.neighbours[h.Src] = NeighbourNode{
		Addr:       h.Src,
		LastSeen:   h.Timestamp,
		Pos:        h.Pos,
		NextTarget: h.NextTarget,
		Speed:      h.Speed,
	}
}

func (b *base) touchNeighbour(addr types.Addr, seen int) {
	n := b.neighbours[addr]
	n.Addr = addr
	if seen > n.LastSeen {
		n.LastSeen = seen
	}
	b.neighbours[addr] = n
}

func (b *base) purgeNeighbours(now int) {
	for addr, n := range b.neighbours {
		if n.LastSeen+b.cfg.Routing.NeighbourStaleness < now {
			delete(b.neighbours, addr)
			b.log.WithField("neighbour", addr).Debug("neighbour expired")
		}
	}
}

func (b *base) helloDue(now int) bool {
	return now%b.cfg.Routing.HelloInterval == 0
}

func (b *base) hello(now int) *types.Hello {
	return &types.Hello{
		Header:     types.NewHeader(b.host.Address(), types.BroadcastAddr, now, 1),
		Pos:        b.host.Position(),
		Speed:      b.host.Speed(),
		NextTarget: b.host.NextTarget(),
	}
}

// routingControl is the shared proactive step: forget stale neighbours and
// beacon on the hello cadence.
func (b *base) routingControl(now int) []types.Packet {
	b.purgeNeighbours(now)
	if !b.helloDue(now) {
		return nil
	}
	return []types.Packet{b.hello(now)}
}

// dispatch is the shared receive path. gate decides whether a packet for
// another node is relayed.
func (b *base) dispatch(p types.Packet, gate func(types.Packet) bool, ack func(*types.Data) *types.Ack) {
	h := p.Head()
	me := b.host.Address()
	if h.Src == me {
		return
	}

	if beacon, ok := p.(types.Beaconer); ok {
		b.processHello(beacon.Beacon())
		return
	}

	if h.Dst != me {
		if gate(p) {
			b.host.Relay(p)
		}
		return
	}

	switch v := p.(type) {
	case *types.Data:
		if b.host.Accept(v) {
			b.host.Enqueue(ack(v))
		}
	case *types.Ack:
		b.host.Acknowledged(v.Acked)
	}
}

// forward is the default relay gate: spend one unit of TTL per hop and refuse
// packets that would arrive with none left.
func (b *base) forward(p types.Packet) bool {
	h := p.Head()
	if h.TTL <= 1 {
		b.sink.TTLDropped()
		return false
	}
	h.TTL--
	h.HopCount++
	return true
}

func (b *base) routePacket(p types.Packet, selectRelay func(types.Packet) (types.Addr, bool)) types.Packet {
	b.sink.RelayCandidates(len(b.neighbours))
	next, ok := selectRelay(p)
	if !ok {
		return nil
	}
	h := p.Head()
	h.DstRelay = next
	h.SrcRelay = b.host.Address()
	b.sink.TransmissionAttempt()
	return p
}

func (b *base) makeData(ev *types.Event) *types.Data {
	d := &types.Data{Header: types.NewHeader(b.host.Address(), b.cfg.DepotAddr(), b.host.Now(), b.cfg.Routing.MaxTTL)}
	d.Event = ev
	return d
}

// makeAck answers d end to end. The first hop is the relay d arrived from.
func (b *base) makeAck(d *types.Data) *types.Ack {
	a := &types.Ack{
		Header: types.NewHeader(b.host.Address(), d.Src, b.host.Now(), b.cfg.Routing.MaxTTL),
		Acked:  d.ID,
	}
	a.DstRelay = d.SrcRelay
	a.Event = d.Event
	return a
}

// candidates lists neighbours eligible to carry p, never bouncing it straight
// back to the node it came from unless that node is the destination.
func (b *base) candidates(p types.Packet) []NeighbourNode {
	h := p.Head()
	var out []NeighbourNode
	for _, addr := range b.neighbourAddrs() {
		if addr == h.Src && addr != h.Dst {
			continue
		}
		if addr == h.SrcRelay && addr != h.Dst {
			continue
		}
		out = append(out, b.neighbours[addr])
	}
	return out
}

func sortAddrs(addrs []types.Addr) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
}
