package radio

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/types"
)

// This is simulating the "air" shared by the depot and the drones

var ErrUnsupportedModel = errors.New("unsupported channel error model")

const (
	bucketWidthWrtRange = 0.5
	sigmaWrtRange       = 1.15
)

type transmission struct {
	packet    types.Packet
	pos       geometry.Point
	rng       float64
	deliverAt int
}

type Radio struct {
	model       string
	successProb float64
	scale       float64
	delay       int

	rand    *rand.Rand
	buckets map[float64][]float64
	air     []transmission
	log     *logrus.Entry
}

// New builds the medium. ranges lists every communication range in the
// scenario so the gaussian tables can be computed up front.
func New(cfg *config.Config, ranges []float64, log *logrus.Entry) (*Radio, error) {
	r := &Radio{
		model:       cfg.Channel.ErrorModel,
		successProb: cfg.Channel.SuccessProbability,
		scale:       cfg.Channel.GaussianScale,
		delay:       cfg.Routing.DeliveryDelay,
		rand:        rand.New(rand.NewSource(cfg.Simulation.Seed)),
		buckets:     make(map[float64][]float64),
		log:         logging.Component(log, "radio", nil),
	}

	switch r.model {
	case config.ErrorModelNone, config.ErrorModelUniform:
	case config.ErrorModelGaussian:
		for _, rng := range ranges {
			r.buckets[rng] = GaussianBuckets(rng)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, r.model)
	}
	return r, nil
}

// GaussianBuckets splits [0, commRange) into buckets half a range wide and
// gives each the probability mass of a zero mean normal distribution, scaled
// so the first bucket is 1.
func GaussianBuckets(commRange float64) []float64 {
	width := commRange * bucketWidthWrtRange
	sigma := commRange * sigmaWrtRange
	if width <= 0 {
		return []float64{1}
	}

	maxProb := normalCDF(width, sigma) - normalCDF(0, sigma)
	n := int(math.Ceil(1 / bucketWidthWrtRange))
	probs := make([]float64, n)
	for i := range probs {
		bk := float64(i) * width
		probs[i] = (normalCDF(bk+width, sigma) - normalCDF(bk, sigma)) / maxProb
	}
	return probs
}

func normalCDF(x, sigma float64) float64 {
	return 0.5 * (1 + math.Erf(x/(sigma*math.Sqrt2)))
}

// SuccessProbability is the chance a transmission over distance survives on a
// link whose effective range is linkRange.
func (r *Radio) SuccessProbability(distance, linkRange float64) float64 {
	switch r.model {
	case config.ErrorModelUniform:
		return r.successProb
	case config.ErrorModelGaussian:
		probs, ok := r.buckets[linkRange]
		if !ok {
			probs = GaussianBuckets(linkRange)
			r.buckets[linkRange] = probs
		}
		idx := int(distance / (linkRange * bucketWidthWrtRange))
		if idx >= len(probs) {
			idx = len(probs) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return probs[idx] * r.scale
	}
	return 1
}

// ChannelSuccess draws whether a single transmission goes through.
func (r *Radio) ChannelSuccess(distance, linkRange float64) bool {
	if r.model == config.ErrorModelNone {
		return true
	}
	return r.rand.Float64() < r.SuccessProbability(distance, linkRange)
}

// Send puts a copy of p on the air. It becomes audible after the delivery delay.
func (r *Radio) Send(p types.Packet, pos geometry.Point, commRange float64, now int) {
	r.air = append(r.air, transmission{
		packet:    p.Clone(),
		pos:       pos,
		rng:       commRange,
		deliverAt: now + r.delay,
	})
}

// Listen returns copies of every audible packet addressed to addr or to
// broadcast that reaches pos and survives the channel.
func (r *Radio) Listen(addr types.Addr, pos geometry.Point, commRange float64, now int) []types.Packet {
	var received []types.Packet
	for _, tx := range r.air {
		h := tx.packet.Head()
		if h.DstRelay != addr && h.DstRelay != types.BroadcastAddr {
			continue
		}
		if h.SrcRelay == addr || tx.deliverAt > now {
			continue
		}

		linkRange := math.Min(commRange, tx.rng)
		distance := geometry.Distance(pos, tx.pos)
		if distance > linkRange {
			continue
		}
		if !r.ChannelSuccess(distance, linkRange) {
			r.log.WithFields(logrus.Fields{
				"packet": h.ID,
				"kind":   tx.packet.Kind(),
				"to":     addr,
			}).Trace("lost on channel")
			continue
		}
		received = append(received, tx.packet.Clone())
	}
	return received
}

// Clear drops every transmission that was audible at now. Called once per
// step after every node has listened; later transmissions stay on the air.
func (r *Radio) Clear(now int) {
	kept := r.air[:0]
	for _, tx := range r.air {
		if tx.deliverAt > now {
			kept = append(kept, tx)
		}
	}
	r.air = kept
}

// Staged returns copies of the packets currently on the air.
func (r *Radio) Staged() []types.Packet {
	out := make([]types.Packet, 0, len(r.air))
	for _, tx := range r.air {
		out = append(out, tx.packet.Clone())
	}
	return out
}
