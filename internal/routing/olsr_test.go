package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

func newOLSR(t *testing.T, addr types.Addr) (*OLSR, *fakeHost, *metrics.Counters) {
	t.Helper()
	host := &fakeHost{addr: addr}
	sink := &metrics.Counters{}
	log, _ := quietLog()
	return NewOLSR(testConfig(config.ProtocolOLSR), host, sink, log), host, sink
}

func olsrHelloFrom(src types.Addr, now, seq int, code types.LinkCode, addrs ...types.Addr) *types.OLSRHello {
	return &types.OLSRHello{
		Hello:       *helloFrom(src, geometry.Point{}, now),
		Seq:         seq,
		Willingness: 3,
		HTime:       30,
		Links:       map[types.LinkCode][]types.Addr{code: addrs},
	}
}

func tcFrom(src, relay types.Addr, now, seq, ansn int, advertised ...types.Addr) *types.TopologyControl {
	tc := &types.TopologyControl{
		Header:     types.NewHeader(src, types.BroadcastAddr, now, 255),
		Seq:        seq,
		ANSN:       ansn,
		Advertised: advertised,
	}
	tc.SrcRelay = relay
	return tc
}

var (
	symMPR = types.LinkCode{Link: types.SymLink, Neighbour: types.MPRNeigh}
	symSym = types.LinkCode{Link: types.SymLink, Neighbour: types.SymNeigh}
)

func TestOLSRHelloMakesSymmetricNeighbour(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10

	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	require.Contains(t, o.nbrs, types.Addr(2))
	assert.True(t, o.nbrs[2].symmetric)
	assert.Contains(t, o.selectors, types.Addr(2))
	assert.True(t, o.HasNeighbours(), "an OLSR hello is still a hello")

	// a hello that does not list us only proves an asymmetric link
	o.Process(olsrHelloFrom(5, 10, 1, symSym, 7))
	assert.False(t, o.nbrs[5].symmetric)
	assert.NotContains(t, o.selectors, types.Addr(5))
}

func TestOLSRRebroadcastsOnlyForSelectors(t *testing.T) {
	b, hostB, _ := newOLSR(t, 3)
	c, hostC, _ := newOLSR(t, 4)
	hostB.now, hostC.now = 10, 10

	b.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	c.Process(olsrHelloFrom(2, 10, 2, symSym, 4))

	tc := tcFrom(2, 2, 10, 7, 1, 3, 4)

	b.Process(tc.Clone())
	require.Len(t, hostB.relayed, 1)
	out := hostB.relayed[0].Head()
	assert.Equal(t, 254, out.TTL)
	assert.Equal(t, 1, out.HopCount)

	b.Process(tc.Clone())
	assert.Len(t, hostB.relayed, 1, "each originator sequence is relayed once")

	c.Process(tc.Clone())
	assert.Empty(t, hostC.relayed)
}

func TestOLSRForwardGateMarksRetransmission(t *testing.T) {
	o, host, sink := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))

	tc := tcFrom(9, 2, 10, 4, 1, 5)
	assert.True(t, o.ShouldForward(tc.Clone()))
	assert.False(t, o.ShouldForward(tc.Clone()))

	last := tcFrom(8, 2, 10, 4, 1, 5)
	last.TTL = 1
	assert.False(t, o.ShouldForward(last))
	assert.Equal(t, uint64(1), sink.TTLDroppedPackets)
}

func TestOLSRRoutesThroughTopology(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	o.Process(tcFrom(2, 2, 10, 2, 1, 3, 4))
	o.Process(tcFrom(4, 2, 10, 1, 1, 6))

	host.now = 11
	o.RoutingControl(11)

	assert.Equal(t, []Route{
		{Dest: 2, Next: 2, Dist: 1},
		{Dest: 4, Next: 2, Dist: 2},
		{Dest: 6, Next: 4, Dist: 3},
	}, o.Routes())

	next, ok := o.RelaySelection(dataFrom(3, 6, 3, 11, 64))
	require.True(t, ok)
	assert.Equal(t, types.Addr(2), next)

	_, ok = o.RelaySelection(dataFrom(3, 42, 3, 11, 64))
	assert.False(t, ok)
}

func TestOLSRTwoHopRoutes(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	o.Process(olsrHelloFrom(2, 10, 2, symSym, 7))

	o.RoutingControl(10)
	next, ok := o.RelaySelection(dataFrom(3, 7, 3, 10, 64))
	require.True(t, ok)
	assert.Equal(t, types.Addr(2), next)
}

func TestOLSRRebuildIsIdempotent(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	o.Process(tcFrom(2, 2, 10, 2, 1, 4))

	o.maintain(11)
	first := o.Routes()
	o.maintain(11)
	assert.Equal(t, first, o.Routes())
	assert.Len(t, first, 2)
}

func TestOLSRIgnoresStaleTopology(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	o.Process(tcFrom(2, 2, 10, 5, 2, 4))
	o.Process(tcFrom(2, 2, 10, 6, 1, 6))

	o.maintain(11)
	_, ok := o.routes[4]
	assert.True(t, ok)
	_, ok = o.routes[6]
	assert.False(t, ok)

	// newer advertisement replaces the old one
	o.Process(tcFrom(2, 2, 10, 7, 3, 8))
	o.maintain(11)
	_, ok = o.routes[4]
	assert.False(t, ok)
	_, ok = o.routes[8]
	assert.True(t, ok)
}

func TestOLSRTopologyControlNeedsSymmetricNeighbours(t *testing.T) {
	o, host, _ := newOLSR(t, 3)

	out := o.RoutingControl(0)
	require.Len(t, out, 1)
	assert.Equal(t, types.KindOLSRHello, out[0].Kind())

	host.now = 50
	o.Process(olsrHelloFrom(2, 50, 1, symMPR, 3))
	host.now = 60
	out = o.RoutingControl(60)
	require.Len(t, out, 2)

	hello := out[0].(*types.OLSRHello)
	code, listed := findCode(hello.Links, 2)
	require.True(t, listed)
	assert.Equal(t, symMPR, code)

	tc := out[1].(*types.TopologyControl)
	assert.Equal(t, []types.Addr{2}, tc.Advertised)
	assert.Equal(t, 1, tc.ANSN)
	assert.Greater(t, tc.Seq, hello.Seq)

	assert.Equal(t, 1, o.topologyControl(60).ANSN, "unchanged set keeps its ANSN")
	host.now = 55
	o.Process(olsrHelloFrom(5, 55, 1, symSym, 3))
	assert.Equal(t, 2, o.topologyControl(60).ANSN)
}

func TestOLSRExpiresLinks(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 10
	o.Process(olsrHelloFrom(2, 10, 1, symMPR, 3))
	o.Process(tcFrom(2, 2, 10, 2, 1, 4))

	cfg := testConfig(config.ProtocolOLSR)
	gone := 10 + cfg.OLSR.VTime + cfg.Routing.NeighbourStaleness + 1
	host.now = gone
	o.RoutingControl(gone)

	assert.Empty(t, o.links)
	assert.Empty(t, o.nbrs)
	assert.Empty(t, o.selectors)
	assert.Empty(t, o.topology)
	assert.Empty(t, o.Routes())
	assert.False(t, o.HasNeighbours())
}

func TestOLSRDataCarriesSequence(t *testing.T) {
	o, host, _ := newOLSR(t, 3)
	host.now = 4
	ev := types.NewEvent(geometry.Point{X: 1}, 4, 100)
	d1 := o.MakeData(ev)
	d2 := o.MakeData(ev)
	assert.NotEqual(t, d1.Seq, d2.Seq)
	assert.Equal(t, types.Addr(1), d1.Dst)

	ack := o.MakeAck(d1)
	assert.Greater(t, ack.Seq, d2.Seq)
	assert.Equal(t, d1.ID, ack.Acked)
}
