package routing

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

type linkTuple struct {
	addr     types.Addr
	symTime  int
	asymTime int
	time     int
}

func (l *linkTuple) linkType(now int) types.LinkType {
	if l.symTime >= now {
		return types.SymLink
	}
	if l.asymTime >= now {
		return types.AsymLink
	}
	return types.LostLink
}

type neighbourTuple struct {
	addr        types.Addr
	symmetric   bool
	willingness int
}

type twoHopKey struct {
	via  types.Addr
	addr types.Addr
}

type topologyKey struct {
	last types.Addr
	dest types.Addr
}

type topologyTuple struct {
	seq  int
	time int
}

type duplicateKey struct {
	addr types.Addr
	seq  int
}

type duplicateTuple struct {
	retransmitted bool
	time          int
}

// Route is one row of the OLSR routing table. Next is the node preceding
// Dest on the path, so distance 1 routes point at themselves.
type Route struct {
	Dest types.Addr
	Next types.Addr
	Dist int
}

type OLSR struct {
	base
	params config.OLSRConfig

	links      map[types.Addr]*linkTuple
	nbrs       map[types.Addr]*neighbourTuple
	twoHop     map[twoHopKey]int
	mprs       map[types.Addr]bool
	selectors  map[types.Addr]int
	topology   map[topologyKey]*topologyTuple
	routes     map[types.Addr]Route
	duplicates map[duplicateKey]*duplicateTuple

	seq        int
	ansn       int
	advertised []types.Addr
}

func NewOLSR(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry) *OLSR {
	return &OLSR{
		base:       newBase(cfg, host, sink, log, "olsr"),
		params:     cfg.OLSR,
		links:      make(map[types.Addr]*linkTuple),
		nbrs:       make(map[types.Addr]*neighbourTuple),
		twoHop:     make(map[twoHopKey]int),
		mprs:       make(map[types.Addr]bool),
		selectors:  make(map[types.Addr]int),
		topology:   make(map[topologyKey]*topologyTuple),
		routes:     make(map[types.Addr]Route),
		duplicates: make(map[duplicateKey]*duplicateTuple),
	}
}

func (o *OLSR) nextSeq() int {
	o.seq++
	return o.seq
}

func (o *OLSR) Process(p types.Packet) {
	h := p.Head()
	if h.TTL <= 0 || h.Src == o.host.Address() {
		return
	}

	now := o.host.Now()
	if s, ok := p.(types.Sequenced); ok {
		key := duplicateKey{addr: h.Src, seq: s.Sequence()}
		if _, dup := o.duplicates[key]; dup {
			return
		}
		o.duplicates[key] = &duplicateTuple{time: now + o.params.DuplicateHoldTime}
	}

	switch v := p.(type) {
	case *types.TopologyControl:
		o.processTopologyControl(v)
	case *types.OLSRHello:
		o.processOLSRHello(v)
	}
	o.dispatch(p, o.ShouldForward, o.MakeAck)
}

// ShouldForward relays a packet once per (originator, sequence), only for
// symmetric neighbours that selected this node as MPR.
func (o *OLSR) ShouldForward(p types.Packet) bool {
	h := p.Head()
	now := o.host.Now()

	var key duplicateKey
	s, sequenced := p.(types.Sequenced)
	if sequenced {
		key = duplicateKey{addr: h.Src, seq: s.Sequence()}
		if d, ok := o.duplicates[key]; ok && d.retransmitted {
			return false
		}
	}

	n, ok := o.nbrs[h.SrcRelay]
	if !ok || !n.symmetric {
		return false
	}
	if _, selector := o.selectors[h.SrcRelay]; !selector {
		return false
	}
	if h.TTL <= 1 {
		o.sink.TTLDropped()
		return false
	}

	if sequenced {
		o.duplicates[key] = &duplicateTuple{retransmitted: true, time: now + o.params.DuplicateHoldTime}
	}
	h.TTL--
	h.HopCount++
	return true
}

func (o *OLSR) neighbourType(addr types.Addr) types.NeighbourType {
	if o.mprs[addr] {
		return types.MPRNeigh
	}
	if n, ok := o.nbrs[addr]; ok && n.symmetric {
		return types.SymNeigh
	}
	return types.NotNeigh
}

func (o *OLSR) olsrHello(now int) *types.OLSRHello {
	links := make(map[types.LinkCode][]types.Addr)
	covered := make(map[types.Addr]bool)

	for _, addr := range o.linkAddrs() {
		l := o.links[addr]
		code := types.LinkCode{Link: l.linkType(now), Neighbour: o.neighbourType(addr)}
		links[code] = append(links[code], addr)
		covered[addr] = true
	}
	for _, addr := range o.nbrAddrs() {
		if covered[addr] {
			continue
		}
		code := types.LinkCode{Link: types.UnspecLink, Neighbour: o.neighbourType(addr)}
		links[code] = append(links[code], addr)
	}

	return &types.OLSRHello{
		Hello:       *o.hello(now),
		Seq:         o.nextSeq(),
		Willingness: o.params.Willingness,
		HTime:       o.cfg.Routing.HelloInterval,
		Links:       links,
	}
}

func (o *OLSR) processOLSRHello(h *types.OLSRHello) {
	now := o.host.Now()
	me := o.host.Address()
	validity := now + o.params.VTime

	l, ok := o.links[h.Src]
	if !ok {
		l = &linkTuple{addr: h.Src, symTime: now - 1, asymTime: -1, time: validity}
		o.links[h.Src] = l
	}
	l.asymTime = validity

	myCode, listed := findCode(h.Links, me)
	if listed {
		switch myCode.Link {
		case types.LostLink:
			l.symTime = now - 1
		case types.AsymLink, types.SymLink:
			l.symTime = validity
			l.time = l.symTime + o.cfg.Routing.NeighbourStaleness
		}
	}
	l.time = max(l.time, l.asymTime)

	n, ok := o.nbrs[h.Src]
	if !ok {
		n = &neighbourTuple{addr: h.Src}
		o.nbrs[h.Src] = n
	}
	n.willingness = h.Willingness
	n.symmetric = l.symTime >= now

	for code, addrs := range h.Links {
		switch code.Neighbour {
		case types.SymNeigh, types.MPRNeigh:
			for _, addr := range addrs {
				if addr == me {
					continue
				}
				o.twoHop[twoHopKey{via: h.Src, addr: addr}] = validity
			}
		case types.NotNeigh:
			for _, addr := range addrs {
				delete(o.twoHop, twoHopKey{via: h.Src, addr: addr})
			}
		}
	}

	if listed && myCode.Neighbour == types.MPRNeigh {
		o.selectors[h.Src] = validity
	}
}

// findCode returns the code a hello advertises addr under.
func findCode(links map[types.LinkCode][]types.Addr, addr types.Addr) (types.LinkCode, bool) {
	codes := make([]types.LinkCode, 0, len(links))
	for code := range links {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].Link != codes[j].Link {
			return codes[i].Link < codes[j].Link
		}
		return codes[i].Neighbour < codes[j].Neighbour
	})
	for _, code := range codes {
		for _, a := range links[code] {
			if a == addr {
				return code, true
			}
		}
	}
	return types.LinkCode{}, false
}

func (o *OLSR) processTopologyControl(tc *types.TopologyControl) {
	now := o.host.Now()
	if n, ok := o.nbrs[tc.SrcRelay]; !ok || !n.symmetric {
		return
	}

	for key, tt := range o.topology {
		if key.last == tc.Src && tt.seq > tc.ANSN {
			return
		}
	}
	for key, tt := range o.topology {
		if key.last == tc.Src && tt.seq < tc.ANSN {
			delete(o.topology, key)
		}
	}

	expiry := now + o.params.VTime
	for _, addr := range tc.Advertised {
		key := topologyKey{last: tc.Src, dest: addr}
		if tt, ok := o.topology[key]; ok {
			tt.time = expiry
			continue
		}
		o.topology[key] = &topologyTuple{seq: tc.ANSN, time: expiry}
	}
}

func (o *OLSR) topologyControl(now int) *types.TopologyControl {
	var sym []types.Addr
	for _, addr := range o.nbrAddrs() {
		if o.nbrs[addr].symmetric {
			sym = append(sym, addr)
		}
	}
	if len(sym) == 0 {
		return nil
	}
	if !equalAddrs(sym, o.advertised) {
		o.ansn++
		o.advertised = sym
	}
	return &types.TopologyControl{
		Header:     types.NewHeader(o.host.Address(), types.BroadcastAddr, now, o.params.TCTTL),
		Seq:        o.nextSeq(),
		ANSN:       o.ansn,
		Advertised: append([]types.Addr(nil), sym...),
	}
}

func (o *OLSR) RoutingControl(now int) []types.Packet {
	o.purgeNeighbours(now)
	o.maintain(now)

	var out []types.Packet
	if o.helloDue(now) {
		out = append(out, o.olsrHello(now))
	}
	if now%o.params.TCInterval == 0 {
		if tc := o.topologyControl(now); tc != nil {
			out = append(out, tc)
		}
	}
	return out
}

// maintain drops expired state and recomputes MPRs and routes from scratch.
func (o *OLSR) maintain(now int) {
	for addr, l := range o.links {
		if l.time >= now {
			continue
		}
		delete(o.links, addr)
		delete(o.nbrs, addr)
		for key := range o.twoHop {
			if key.via == addr {
				delete(o.twoHop, key)
			}
		}
	}
	for _, l := range o.links {
		if n, ok := o.nbrs[l.addr]; ok {
			n.symmetric = l.symTime >= now
		}
	}
	for key, exp := range o.twoHop {
		if exp < now {
			delete(o.twoHop, key)
		}
	}
	for addr, exp := range o.selectors {
		if exp < now {
			delete(o.selectors, addr)
		}
	}
	for key, tt := range o.topology {
		if tt.time < now {
			delete(o.topology, key)
		}
	}
	for key, d := range o.duplicates {
		if d.time < now {
			delete(o.duplicates, key)
		}
	}

	o.updateMPRs()
	o.rebuildRoutes()
}

// updateMPRs selects every symmetric neighbour as multipoint relay.
// TODO: replace with the RFC 3626 greedy two-hop coverage heuristic.
func (o *OLSR) updateMPRs() {
	o.mprs = make(map[types.Addr]bool)
	for addr, n := range o.nbrs {
		if n.symmetric {
			o.mprs[addr] = true
		}
	}
}

func (o *OLSR) rebuildRoutes() {
	me := o.host.Address()
	routes := make(map[types.Addr]Route)

	for _, addr := range o.nbrAddrs() {
		if o.nbrs[addr].symmetric {
			routes[addr] = Route{Dest: addr, Next: addr, Dist: 1}
		}
	}

	twoHop := make([]twoHopKey, 0, len(o.twoHop))
	for key := range o.twoHop {
		twoHop = append(twoHop, key)
	}
	sort.Slice(twoHop, func(i, j int) bool {
		if twoHop[i].addr != twoHop[j].addr {
			return twoHop[i].addr < twoHop[j].addr
		}
		return twoHop[i].via < twoHop[j].via
	})
	for _, key := range twoHop {
		if key.addr == me {
			continue
		}
		if _, known := routes[key.addr]; known {
			continue
		}
		if via, ok := routes[key.via]; !ok || via.Dist != 1 {
			continue
		}
		routes[key.addr] = Route{Dest: key.addr, Next: key.via, Dist: 2}
	}

	topology := make([]topologyKey, 0, len(o.topology))
	for key := range o.topology {
		topology = append(topology, key)
	}
	sort.Slice(topology, func(i, j int) bool {
		if topology[i].dest != topology[j].dest {
			return topology[i].dest < topology[j].dest
		}
		return topology[i].last < topology[j].last
	})
	for dist, added := 1, true; added; dist++ {
		added = false
		for _, key := range topology {
			if key.dest == me {
				continue
			}
			if _, known := routes[key.dest]; known {
				continue
			}
			last, ok := routes[key.last]
			if !ok || last.Dist != dist {
				continue
			}
			routes[key.dest] = Route{Dest: key.dest, Next: key.last, Dist: dist + 1}
			added = true
		}
	}

	o.routes = routes
}

// Routes returns the routing table sorted by destination.
func (o *OLSR) Routes() []Route {
	out := make([]Route, 0, len(o.routes))
	for _, r := range o.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dest < out[j].Dest })
	return out
}

func (o *OLSR) RelaySelection(p types.Packet) (types.Addr, bool) {
	r, ok := o.routes[p.Head().Dst]
	if !ok {
		return 0, false
	}
	for hops := 0; r.Dist > 1; hops++ {
		if hops > len(o.routes) {
			return 0, false
		}
		r, ok = o.routes[r.Next]
		if !ok {
			return 0, false
		}
	}
	return r.Dest, true
}

func (o *OLSR) RoutePacket(p types.Packet) types.Packet {
	return o.routePacket(p, o.RelaySelection)
}

func (o *OLSR) MakeData(ev *types.Event) *types.Data {
	d := o.makeData(ev)
	d.Seq = o.nextSeq()
	return d
}

func (o *OLSR) MakeAck(d *types.Data) *types.Ack {
	a := o.makeAck(d)
	a.Seq = o.nextSeq()
	return a
}

func (o *OLSR) linkAddrs() []types.Addr {
	out := make([]types.Addr, 0, len(o.links))
	for addr := range o.links {
		out = append(out, addr)
	}
	sortAddrs(out)
	return out
}

func (o *OLSR) nbrAddrs() []types.Addr {
	out := make([]types.Addr, 0, len(o.nbrs))
	for addr := range o.nbrs {
		out = append(out, addr)
	}
	sortAddrs(out)
	return out
}

func equalAddrs(a, b []types.Addr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
