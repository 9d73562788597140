package routing

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/types"
)

// Random hands packets to a uniformly chosen neighbour.
type Random struct {
	base
	rand *rand.Rand
}

func NewRandom(cfg *config.Config, host Host, sink metrics.Sink, log *logrus.Entry) *Random {
	seed := cfg.Simulation.Seed + int64(host.Address())
	return &Random{
		base: newBase(cfg, host, sink, log, "random"),
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (r *Random) RelaySelection(p types.Packet) (types.Addr, bool) {
	candidates := r.candidates(p)
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[r.rand.Intn(len(candidates))].Addr, true
}

func (r *Random) Process(p types.Packet) {
	r.dispatch(p, r.ShouldForward, r.MakeAck)
}

func (r *Random) RoutingControl(now int) []types.Packet {
	return r.routingControl(now)
}

func (r *Random) RoutePacket(p types.Packet) types.Packet {
	return r.routePacket(p, r.RelaySelection)
}

func (r *Random) ShouldForward(p types.Packet) bool {
	return r.forward(p)
}

func (r *Random) MakeData(ev *types.Event) *types.Data {
	return r.makeData(ev)
}

func (r *Random) MakeAck(d *types.Data) *types.Ack {
	return r.makeAck(d)
}
