package routing

import (
	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

// Geo forwards greedily to the neighbour predicted to be closest to the
// packet's target.
type Geo struct {
	base
}

func NewGeo(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry) *Geo {
	return &Geo{base: newBase(cfg, host, sink, log, "geo")}
}

// predict estimates where n is now from its last hello.
func (g *Geo) predict(n NeighbourNode) geometry.Point {
	elapsed := float64(g.host.Now()-n.LastSeen) * g.cfg.Simulation.StepDuration
	return geometry.Predict(n.Pos, n.NextTarget, n.Speed, elapsed)
}

func (g *Geo) target(p types.Packet) (geometry.Point, bool) {
	h := p.Head()
	if h.Dst == g.cfg.DepotAddr() {
		return g.cfg.Depot.Position, true
	}
	if n, ok := g.neighbours[h.Dst]; ok {
		return g.predict(n), true
	}
	if h.Event != nil {
		return h.Event.Coords, true
	}
	return geometry.Point{}, false
}

func (g *Geo) RelaySelection(p types.Packet) (types.Addr, bool) {
	target, ok := g.target(p)
	if !ok {
		return 0, false
	}

	best := geometry.Distance(g.host.Position(), target)
	var relay types.Addr
	found := false
	for _, n := range g.candidates(p) {
		d := geometry.Distance(g.predict(n), target)
		if d < best {
			best = d
			relay = n.Addr
			found = true
		}
	}
	return relay, found
}

func (g *Geo) Process(p types.Packet) {
	g.dispatch(p, g.ShouldForward, g.MakeAck)
}

func (g *Geo) RoutingControl(now int) []types.Packet {
	return g.routingControl(now)
}

func (g *Geo) RoutePacket(p types.Packet) types.Packet {
	return g.routePacket(p, g.RelaySelection)
}

func (g *Geo) ShouldForward(p types.Packet) bool {
	return g.forward(p)
}

func (g *Geo) MakeData(ev *types.Event) *types.Data {
	return g.makeData(ev)
}

func (g *Geo) MakeAck(d *types.Data) *types.Ack {
	return g.makeAck(d)
}
