package types

import (
	"testing"

	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/stretchr/testify/assert"
)

func TestLiveness(t *testing.T) {
	ev := NewEvent(geometry.Point{X: 1, Y: 1}, 10, 5)
	d := &Data{Header: NewHeader(2, 1, 10, 64)}

	assert.Equal(t, Live, d.Liveness(1000), "no event means no deadline")

	d.Event = ev
	assert.Equal(t, Live, d.Liveness(15))
	assert.Equal(t, Expired, d.Liveness(16))
}

func TestNewHeaderIDsAreUnique(t *testing.T) {
	a := NewHeader(2, 1, 0, 64)
	b := NewHeader(2, 1, 0, 64)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, Addr(2), a.SrcRelay)
	assert.Equal(t, Addr(1), a.DstRelay)
}

func TestCloneIsIndependent(t *testing.T) {
	tc := &TopologyControl{Header: NewHeader(3, BroadcastAddr, 0, 255), Advertised: []Addr{4, 5}}
	c := tc.Clone().(*TopologyControl)
	c.TTL--
	c.Advertised[0] = 9

	assert.Equal(t, 255, tc.TTL)
	assert.Equal(t, Addr(4), tc.Advertised[0])
	assert.Equal(t, tc.ID, c.ID)

	h := &OLSRHello{Links: map[LinkCode][]Addr{{SymLink, MPRNeigh}: {7}}}
	hc := h.Clone().(*OLSRHello)
	hc.Links[LinkCode{SymLink, MPRNeigh}][0] = 8
	assert.Equal(t, Addr(7), h.Links[LinkCode{SymLink, MPRNeigh}][0])
	assert.Equal(t, KindOLSRHello, hc.Kind())
	assert.Same(t, &hc.Hello, hc.Beacon())
}

func TestRouteReplyIsHello(t *testing.T) {
	r := &RouteReply{Header: NewHeader(4, BroadcastAddr, 0, 1), DstAddr: 4, OrigAddr: 4}
	assert.True(t, r.IsHello())
	r.OrigAddr = 2
	assert.False(t, r.IsHello())
}
