package types

import (
	"fmt"
	"sync/atomic"

	"github.com/azaurus1/fanet/internal/geometry"
)

// Addr is a node address on the simulated network.
type Addr int

const BroadcastAddr Addr = 255

type Kind int

const (
	KindData Kind = iota
	KindAck
	KindHello
	KindRouteRequest
	KindRouteReply
	KindRouteError
	KindOLSRHello
	KindTopologyControl
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	case KindHello:
		return "HELLO"
	case KindRouteRequest:
		return "RREQ"
	case KindRouteReply:
		return "RREP"
	case KindRouteError:
		return "RERR"
	case KindOLSRHello:
		return "OLSR_HELLO"
	case KindTopologyControl:
		return "TC"
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

var (
	packetIDs atomic.Uint64
	eventIDs  atomic.Uint64
)

// NextPacketID hands out process-unique packet identifiers.
func NextPacketID() uint64 {
	return packetIDs.Add(1)
}

// Event is something a drone sensed and wants reported to the depot.
type Event struct {
	ID       uint64         `json:"id"`
	Coords   geometry.Point `json:"coords"`
	Created  int            `json:"created"`
	Deadline int            `json:"deadline"`
}

func NewEvent(coords geometry.Point, now, duration int) *Event {
	return &Event{
		ID:       eventIDs.Add(1),
		Coords:   coords,
		Created:  now,
		Deadline: now + duration,
	}
}

func (e *Event) Expired(now int) bool {
	return now > e.Deadline
}

type Liveness int

const (
	Live Liveness = iota
	Expired
)

// Header is the envelope every packet carries.
type Header struct {
	ID        uint64 `json:"id"`
	Src       Addr   `json:"src"`
	Dst       Addr   `json:"dst"`
	SrcRelay  Addr   `json:"src_relay"`
	DstRelay  Addr   `json:"dst_relay"`
	Timestamp int    `json:"timestamp"`
	HopCount  int    `json:"hop_count"`
	TTL       int    `json:"ttl"`
	Event     *Event `json:"event,omitempty"`
}

// NewHeader returns a fresh envelope. Relay addresses start out equal to the
// end-to-end ones.
func NewHeader(src, dst Addr, now, ttl int) Header {
	return Header{
		ID:        NextPacketID(),
		Src:       src,
		Dst:       dst,
		SrcRelay:  src,
		DstRelay:  dst,
		Timestamp: now,
		TTL:       ttl,
	}
}

func (h *Header) Head() *Header { return h }

func (h *Header) Age(now int) int { return now - h.Timestamp }

// Liveness reports whether the attached event is past its deadline. Packets
// without an event never expire.
func (h *Header) Liveness(now int) Liveness {
	if h.Event != nil && h.Event.Expired(now) {
		return Expired
	}
	return Live
}

// Packet is implemented by every wire message.
type Packet interface {
	Head() *Header
	Kind() Kind
	Clone() Packet
}

// Sequenced packets carry a per-originator sequence number.
type Sequenced interface {
	Sequence() int
}

// Beaconer is implemented by every hello variant.
type Beaconer interface {
	Beacon() *Hello
}

type Data struct {
	Header
	Seq int `json:"seq"`
}

func (d *Data) Kind() Kind     { return KindData }
func (d *Data) Sequence() int  { return d.Seq }
func (d *Data) Clone() Packet  { c := *d; return &c }
func (d *Data) String() string { return fmt.Sprintf("DATA id:%d %d->%d", d.ID, d.Src, d.Dst) }

type Ack struct {
	Header
	Acked uint64 `json:"acked"`
	Seq   int    `json:"seq"`
}

func (a *Ack) Kind() Kind    { return KindAck }
func (a *Ack) Sequence() int { return a.Seq }
func (a *Ack) Clone() Packet { c := *a; return &c }

type Hello struct {
	Header
	Pos        geometry.Point `json:"pos"`
	Speed      float64        `json:"speed"`
	NextTarget geometry.Point `json:"next_target"`
}

func (h *Hello) Kind() Kind     { return KindHello }
func (h *Hello) Beacon() *Hello { return h }
func (h *Hello) Clone() Packet  { c := *h; return &c }

// RouteRequest is an AODV RREQ. HopCount in the header counts hops travelled
// from the originator.
type RouteRequest struct {
	Header
	RequestID   int  `json:"rreq_id"`
	DstAddr     Addr `json:"dst_addr"`
	OrigSeq     int  `json:"orig_seq"`
	DstSeq      int  `json:"dst_seq"`
	DstSeqKnown bool `json:"dst_seq_known"`
}

func (r *RouteRequest) Kind() Kind    { return KindRouteRequest }
func (r *RouteRequest) Clone() Packet { c := *r; return &c }

// RouteReply is an AODV RREP. HopCount in the header is the sender's distance
// to DstAddr.
type RouteReply struct {
	Header
	DstAddr  Addr `json:"dst_addr"`
	DstSeq   int  `json:"dst_seq"`
	Lifetime int  `json:"lifetime"`
	OrigAddr Addr `json:"orig_addr"`
}

func (r *RouteReply) Kind() Kind    { return KindRouteReply }
func (r *RouteReply) Clone() Packet { c := *r; return &c }

// IsHello reports whether the reply is the self-referential beacon AODV uses
// in place of a hello message.
func (r *RouteReply) IsHello() bool {
	return r.OrigAddr == r.Src && r.DstAddr == r.Src
}

type Unreachable struct {
	Addr Addr `json:"addr"`
	Seq  int  `json:"seq"`
}

type RouteError struct {
	Header
	Unreachable []Unreachable `json:"unreachable"`
}

func (r *RouteError) Kind() Kind { return KindRouteError }

func (r *RouteError) Clone() Packet {
	c := *r
	c.Unreachable = append([]Unreachable(nil), r.Unreachable...)
	return &c
}

type LinkType int

const (
	UnspecLink LinkType = iota
	AsymLink
	SymLink
	LostLink
)

type NeighbourType int

const (
	NotNeigh NeighbourType = iota
	SymNeigh
	MPRNeigh
)

// LinkCode is what an OLSR hello advertises for a group of addresses.
type LinkCode struct {
	Link      LinkType      `json:"link"`
	Neighbour NeighbourType `json:"neighbour"`
}

type OLSRHello struct {
	Hello
	Seq         int                 `json:"seq"`
	Willingness int                 `json:"willingness"`
	HTime       int                 `json:"htime"`
	Links       map[LinkCode][]Addr `json:"-"`
}

func (h *OLSRHello) Kind() Kind    { return KindOLSRHello }
func (h *OLSRHello) Sequence() int { return h.Seq }

func (h *OLSRHello) Clone() Packet {
	c := *h
	c.Links = make(map[LinkCode][]Addr, len(h.Links))
	for code, addrs := range h.Links {
		c.Links[code] = append([]Addr(nil), addrs...)
	}
	return &c
}

type TopologyControl struct {
	Header
	Seq        int    `json:"seq"`
	ANSN       int    `json:"ansn"`
	Advertised []Addr `json:"advertised"`
}

func (t *TopologyControl) Kind() Kind    { return KindTopologyControl }
func (t *TopologyControl) Sequence() int { return t.Seq }

func (t *TopologyControl) Clone() Packet {
	c := *t
	c.Advertised = append([]Addr(nil), t.Advertised...)
	return &c
}
