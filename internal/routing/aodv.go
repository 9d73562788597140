package routing

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

// timeout buffer added to the ring traversal time of an expanding ring search
const ringTimeoutBuffer = 2

type RoutingTableEntry struct {
	Dest           types.Addr
	SequenceNumber int
	SeqValid       bool
	Valid          bool
	HopCount       int
	NextHop        types.Addr
	Expiration     int
	Precursors     map[types.Addr]struct{}
}

type RoutingTable struct {
	Entries map[types.Addr]*RoutingTableEntry
}

func (t *RoutingTable) destinations() []types.Addr {
	out := make([]types.Addr, 0, len(t.Entries))
	for dst := range t.Entries {
		out = append(out, dst)
	}
	sortAddrs(out)
	return out
}

type rreqKey struct {
	orig types.Addr
	id   int
}

// discovery tracks an outstanding route request for one destination.
type discovery struct {
	ttl      int
	retries  int
	deadline int
}

type AODV struct {
	base
	params config.AODVConfig

	Table     RoutingTable
	seq       int
	rreqID    int
	seen      map[rreqKey]int
	pending   map[types.Addr]*discovery
	lastClean int
}

func NewAODV(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry) *AODV {
	return &AODV{
		base:    newBase(cfg, host, sink, log, "aodv"),
		params:  cfg.AODV,
		Table:   RoutingTable{Entries: make(map[types.Addr]*RoutingTableEntry)},
		seen:    make(map[rreqKey]int),
		pending: make(map[types.Addr]*discovery),
	}
}

func (a *AODV) NetTraversalTime() int {
	return 2 * a.params.NodeTraversalTime * a.params.NetDiameter
}

func (a *AODV) PathDiscoveryTime() int {
	return 2 * a.NetTraversalTime()
}

func (a *AODV) activeRouteTimeout() int {
	return a.cfg.Routing.NeighbourStaleness
}

func (a *AODV) myRouteTimeout() int {
	return 2 * a.activeRouteTimeout()
}

func (a *AODV) deletePeriod() int {
	return a.params.DeletePeriodFactor * max(a.activeRouteTimeout(), a.cfg.Routing.HelloInterval)
}

func (a *AODV) ringTraversalTime(ttl int) int {
	return 2 * a.params.NodeTraversalTime * (ttl + ringTimeoutBuffer)
}

// SequenceNumber is this node's own destination sequence number.
func (a *AODV) SequenceNumber() int {
	return a.seq
}

// Route returns a copy of the table entry for dst.
func (a *AODV) Route(dst types.Addr) (RoutingTableEntry, bool) {
	e, ok := a.Table.Entries[dst]
	if !ok {
		return RoutingTableEntry{}, false
	}
	return *e, true
}

func (a *AODV) Process(p types.Packet) {
	if p.Head().Src == a.host.Address() {
		return
	}

	switch v := p.(type) {
	case *types.RouteRequest:
		a.processRouteRequest(v)
	case *types.RouteReply:
		if v.IsHello() {
			a.processHelloReply(v)
			return
		}
		a.processRouteReply(v)
	case *types.RouteError:
		a.processRouteError(v)
	default:
		a.dispatch(p, a.ShouldForward, a.MakeAck)
	}
}

func (a *AODV) ShouldForward(p types.Packet) bool {
	return a.forward(p)
}

func (a *AODV) RoutePacket(p types.Packet) types.Packet {
	return a.routePacket(p, a.RelaySelection)
}

func (a *AODV) MakeData(ev *types.Event) *types.Data {
	return a.makeData(ev)
}

func (a *AODV) MakeAck(d *types.Data) *types.Ack {
	return a.makeAck(d)
}

func (a *AODV) RelaySelection(p types.Packet) (types.Addr, bool) {
	h := p.Head()
	now := a.host.Now()

	if e := a.validRoute(h.Dst, now); e != nil {
		a.extend(h.Dst, now)
		a.extend(e.NextHop, now)
		a.extend(h.Src, now)
		return e.NextHop, true
	}

	if h.Src == a.host.Address() {
		a.requestRoute(h.Dst, now)
		return 0, false
	}

	seq := 0
	if e, ok := a.Table.Entries[h.Dst]; ok {
		if e.Valid {
			a.invalidate(e, now)
		}
		seq = e.SequenceNumber
	}
	a.log.WithFields(logrus.Fields{"dst": h.Dst, "packet": h.ID}).Debug("no route while relaying")
	a.host.Enqueue(a.routeError(now, []types.Unreachable{{Addr: h.Dst, Seq: seq}}))
	return 0, false
}

func (a *AODV) RoutingControl(now int) []types.Packet {
	a.purgeNeighbours(now)

	var out []types.Packet
	if a.helloDue(now) {
		out = append(out, a.helloReply(now))
	}
	out = append(out, a.retryDiscoveries(now)...)
	if now-a.lastClean >= a.params.CleanInterval {
		a.lastClean = now
		out = append(out, a.clean(now)...)
	}
	return out
}

// helloReply is the neighbour beacon: a one hop RREP advertising a route to
// ourselves.
func (a *AODV) helloReply(now int) *types.RouteReply {
	me := a.host.Address()
	return &types.RouteReply{
		Header:   types.NewHeader(me, types.BroadcastAddr, now, 1),
		DstAddr:  me,
		DstSeq:   a.seq,
		Lifetime: a.params.AllowedHelloLoss * a.cfg.Routing.HelloInterval,
		OrigAddr: me,
	}
}

func (a *AODV) processHelloReply(r *types.RouteReply) {
	now := a.host.Now()
	a.touchNeighbour(r.Src, r.Timestamp)
	a.updateRoute(r.Src, r.DstSeq, 1, r.Src, now+r.Lifetime)
}

func (a *AODV) validRoute(dst types.Addr, now int) *RoutingTableEntry {
	e, ok := a.Table.Entries[dst]
	if !ok || !e.Valid || e.Expiration <= now {
		return nil
	}
	return e
}

func (a *AODV) extend(dst types.Addr, now int) {
	if e, ok := a.Table.Entries[dst]; ok && e.Valid {
		e.Expiration = max(e.Expiration, now+a.activeRouteTimeout())
	}
}

func (a *AODV) invalidate(e *RoutingTableEntry, now int) {
	e.Valid = false
	if e.SeqValid {
		e.SequenceNumber++
	}
	e.Expiration = now + a.deletePeriod()
}

// refreshNeighbourRoute keeps a one hop route to a node we just heard from,
// without touching its sequence number.
func (a *AODV) refreshNeighbourRoute(addr types.Addr, now int) {
	e, ok := a.Table.Entries[addr]
	if !ok {
		e = &RoutingTableEntry{Dest: addr, Precursors: make(map[types.Addr]struct{})}
		a.Table.Entries[addr] = e
	}
	e.Valid = true
	e.HopCount = 1
	e.NextHop = addr
	e.Expiration = max(e.Expiration, now+a.activeRouteTimeout())
}

// updateRoute applies the route replacement rule and reports whether the
// entry was replaced. Equal routes only get their lifetime extended.
func (a *AODV) updateRoute(dst types.Addr, seq, hops int, next types.Addr, expiry int) (*RoutingTableEntry, bool) {
	e, ok := a.Table.Entries[dst]
	if !ok {
		e = &RoutingTableEntry{
			Dest:           dst,
			SequenceNumber: seq,
			SeqValid:       true,
			Valid:          true,
			HopCount:       hops,
			NextHop:        next,
			Expiration:     expiry,
			Precursors:     make(map[types.Addr]struct{}),
		}
		a.Table.Entries[dst] = e
		return e, true
	}

	replace := !e.SeqValid ||
		seq > e.SequenceNumber ||
		(seq == e.SequenceNumber && !e.Valid) ||
		(seq == e.SequenceNumber && hops < e.HopCount)
	if !replace {
		if e.Valid && seq == e.SequenceNumber && next == e.NextHop {
			e.Expiration = max(e.Expiration, expiry)
		}
		return e, false
	}

	wasValid := e.Valid
	e.SequenceNumber = seq
	e.SeqValid = true
	e.Valid = true
	e.HopCount = hops
	e.NextHop = next
	if wasValid {
		e.Expiration = max(e.Expiration, expiry)
	} else {
		e.Expiration = expiry
	}
	return e, true
}

func (a *AODV) processRouteRequest(r *types.RouteRequest) {
	now := a.host.Now()
	me := a.host.Address()
	last := r.SrcRelay
	a.refreshNeighbourRoute(last, now)

	key := rreqKey{orig: r.Src, id: r.RequestID}
	if exp, ok := a.seen[key]; ok && exp >= now {
		a.log.WithFields(logrus.Fields{"orig": r.Src, "rreq_id": r.RequestID}).Trace("duplicate route request")
		return
	}
	a.seen[key] = now + a.PathDiscoveryTime()

	hops := r.HopCount + 1
	lifetime := max(2*a.NetTraversalTime()-2*hops*a.params.NodeTraversalTime, 1)
	a.updateRoute(r.Src, r.OrigSeq, hops, last, now+lifetime)

	if r.DstAddr == me || a.validRoute(r.DstAddr, now) != nil {
		a.generateRouteReply(r, hops, now)
		return
	}

	if r.TTL <= 1 {
		return
	}
	fwd := r.Clone().(*types.RouteRequest)
	fwd.TTL--
	fwd.HopCount = hops
	fwd.DstRelay = types.BroadcastAddr
	if e, ok := a.Table.Entries[r.DstAddr]; ok && e.SeqValid {
		if !fwd.DstSeqKnown || e.SequenceNumber > fwd.DstSeq {
			fwd.DstSeq = e.SequenceNumber
		}
		fwd.DstSeqKnown = true
	}
	a.host.Enqueue(fwd)
}

func (a *AODV) generateRouteReply(r *types.RouteRequest, hops, now int) {
	me := a.host.Address()
	var hopCount, seq, lifetime int

	if r.DstAddr == me {
		if r.DstSeqKnown && r.DstSeq > a.seq {
			a.seq = r.DstSeq
		}
		hopCount, seq, lifetime = 0, a.seq, a.myRouteTimeout()
	} else {
		fwd := a.Table.Entries[r.DstAddr]
		hopCount, seq, lifetime = fwd.HopCount, fwd.SequenceNumber, fwd.Expiration-now
		fwd.Precursors[r.SrcRelay] = struct{}{}

		rev := a.Table.Entries[r.Src]
		rev.Precursors[fwd.NextHop] = struct{}{}

		// tell the destination about the originator as well
		grat := &types.RouteReply{
			Header:   types.NewHeader(me, r.DstAddr, now, a.cfg.Routing.MaxTTL),
			DstAddr:  r.Src,
			DstSeq:   r.OrigSeq,
			Lifetime: rev.Expiration - now,
			OrigAddr: r.DstAddr,
		}
		grat.HopCount = hops
		grat.DstRelay = fwd.NextHop
		a.host.Enqueue(grat)
	}

	rrep := &types.RouteReply{
		Header:   types.NewHeader(me, r.Src, now, a.cfg.Routing.MaxTTL),
		DstAddr:  r.DstAddr,
		DstSeq:   seq,
		Lifetime: lifetime,
		OrigAddr: r.Src,
	}
	rrep.HopCount = hopCount
	rrep.DstRelay = r.SrcRelay
	a.host.Enqueue(rrep)
}

func (a *AODV) processRouteReply(r *types.RouteReply) {
	now := a.host.Now()
	a.refreshNeighbourRoute(r.SrcRelay, now)

	hops := r.HopCount + 1
	a.updateRoute(r.DstAddr, r.DstSeq, hops, r.SrcRelay, now+r.Lifetime)

	if r.OrigAddr == a.host.Address() {
		delete(a.pending, r.DstAddr)
		a.host.Reoffer(r.DstAddr)
		return
	}
	if r.TTL <= 1 {
		return
	}

	rev := a.validRoute(r.OrigAddr, now)
	if rev == nil {
		a.log.WithFields(logrus.Fields{
			"orig":   r.OrigAddr,
			"dst":    r.DstAddr,
			"packet": r.ID,
		}).Warn("no reverse route for route reply, dropping it")
		return
	}
	if fwd, ok := a.Table.Entries[r.DstAddr]; ok {
		fwd.Precursors[rev.NextHop] = struct{}{}
	}
	rev.Precursors[r.SrcRelay] = struct{}{}

	out := r.Clone().(*types.RouteReply)
	out.TTL--
	out.HopCount = hops
	out.DstRelay = rev.NextHop
	a.host.Enqueue(out)
}

func (a *AODV) processRouteError(r *types.RouteError) {
	now := a.host.Now()
	var lost []types.Unreachable
	for _, u := range r.Unreachable {
		e, ok := a.Table.Entries[u.Addr]
		if !ok || !e.Valid || e.NextHop != r.SrcRelay {
			continue
		}
		a.invalidate(e, now)
		if u.Seq > e.SequenceNumber {
			e.SequenceNumber = u.Seq
		}
		lost = append(lost, types.Unreachable{Addr: e.Dest, Seq: e.SequenceNumber})
	}
	if len(lost) > 0 {
		a.host.Enqueue(a.routeError(now, lost))
	}
}

func (a *AODV) routeError(now int, lost []types.Unreachable) *types.RouteError {
	sort.Slice(lost, func(i, j int) bool { return lost[i].Addr < lost[j].Addr })
	return &types.RouteError{
		Header:      types.NewHeader(a.host.Address(), types.BroadcastAddr, now, 1),
		Unreachable: lost,
	}
}

func (a *AODV) requestRoute(dst types.Addr, now int) {
	if _, ok := a.pending[dst]; ok {
		return
	}
	a.seq++
	d := &discovery{ttl: a.params.TTLStart}
	d.deadline = now + a.ringTraversalTime(d.ttl)
	a.pending[dst] = d
	a.host.Enqueue(a.newRouteRequest(dst, d.ttl, now))
}

func (a *AODV) newRouteRequest(dst types.Addr, ttl, now int) *types.RouteRequest {
	me := a.host.Address()
	a.rreqID++
	r := &types.RouteRequest{
		Header:    types.NewHeader(me, types.BroadcastAddr, now, ttl),
		RequestID: a.rreqID,
		DstAddr:   dst,
		OrigSeq:   a.seq,
	}
	if e, ok := a.Table.Entries[dst]; ok && e.SeqValid {
		r.DstSeq = e.SequenceNumber
		r.DstSeqKnown = true
	}
	a.seen[rreqKey{orig: me, id: a.rreqID}] = now + a.PathDiscoveryTime()
	return r
}

// retryDiscoveries widens the search ring of timed out requests and gives up
// on a destination once the retry budget at full network diameter is spent.
func (a *AODV) retryDiscoveries(now int) []types.Packet {
	dsts := make([]types.Addr, 0, len(a.pending))
	for dst := range a.pending {
		dsts = append(dsts, dst)
	}
	sortAddrs(dsts)

	var out []types.Packet
	for _, dst := range dsts {
		d := a.pending[dst]
		if a.validRoute(dst, now) != nil {
			delete(a.pending, dst)
			continue
		}
		if now < d.deadline {
			continue
		}

		if d.ttl < a.params.NetDiameter {
			d.ttl += a.params.TTLIncrement
			if d.ttl > a.params.TTLThreshold || d.ttl >= a.params.NetDiameter {
				d.ttl = a.params.NetDiameter
				d.deadline = now + a.NetTraversalTime()
			} else {
				d.deadline = now + a.ringTraversalTime(d.ttl)
			}
		} else {
			d.retries++
			if d.retries > a.params.RREQRetries {
				delete(a.pending, dst)
				n := a.host.Purge(dst)
				a.sink.Undeliverable(n)
				a.log.WithFields(logrus.Fields{"dst": dst, "dropped": n}).Info("route discovery failed, destination undeliverable")
				continue
			}
			d.deadline = now + a.NetTraversalTime()<<d.retries
		}
		out = append(out, a.newRouteRequest(dst, d.ttl, now))
	}
	return out
}

// clean expires routes, invalidates everything routed through them and
// forgets old request ids. It runs every CleanInterval steps.
func (a *AODV) clean(now int) []types.Packet {
	dsts := a.Table.destinations()
	invalidated := make(map[types.Addr]bool)
	var lost []types.Unreachable

	for _, dst := range dsts {
		e := a.Table.Entries[dst]
		if e.Valid && e.Expiration <= now {
			a.invalidate(e, now)
			invalidated[dst] = true
			lost = append(lost, types.Unreachable{Addr: dst, Seq: e.SequenceNumber})
		}
	}
	for changed := len(invalidated) > 0; changed; {
		changed = false
		for _, dst := range dsts {
			e := a.Table.Entries[dst]
			if e.Valid && invalidated[e.NextHop] {
				a.invalidate(e, now)
				invalidated[dst] = true
				lost = append(lost, types.Unreachable{Addr: dst, Seq: e.SequenceNumber})
				changed = true
			}
		}
	}

	for dst, e := range a.Table.Entries {
		if !e.Valid && e.Expiration < now {
			delete(a.Table.Entries, dst)
		}
	}
	for key, exp := range a.seen {
		if exp < now {
			delete(a.seen, key)
		}
	}

	if len(lost) == 0 {
		return nil
	}
	a.log.WithField("routes", len(lost)).Debug("routes expired")
	return []types.Packet{a.routeError(now, lost)}
}
