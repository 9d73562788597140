package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is a Sink backed by Prometheus collectors.
type Prometheus struct {
	gatherer prometheus.Gatherer

	Packets              *prometheus.CounterVec
	DeliveryDelay        prometheus.Histogram
	RelayCandidateCount  prometheus.Histogram
	TransmissionAttempts prometheus.Counter
	MissionSteps         prometheus.Counter
}

// NewPrometheus registers the simulator collectors against reg, defaulting to
// the global registry when nil.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	packets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanet_packets_total",
		Help: "Data packet outcomes, labeled by outcome.",
	}, []string{"outcome"}), "fanet_packets_total")
	if err != nil {
		return nil, err
	}

	delay, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanet_delivery_delay_steps",
		Help:    "Steps between event generation and first delivery at the depot.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "fanet_delivery_delay_steps")
	if err != nil {
		return nil, err
	}

	candidates, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanet_relay_candidates",
		Help:    "Number of known neighbours at each relay selection.",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	}), "fanet_relay_candidates")
	if err != nil {
		return nil, err
	}

	attempts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanet_transmission_attempts_total",
		Help: "Packets handed to a relay by routing.",
	}), "fanet_transmission_attempts_total")
	if err != nil {
		return nil, err
	}

	mission, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanet_mission_steps_total",
		Help: "Drone steps spent flying the mission path.",
	}), "fanet_mission_steps_total")
	if err != nil {
		return nil, err
	}

	return &Prometheus{
		gatherer:             gatherer,
		Packets:              packets,
		DeliveryDelay:        delay,
		RelayCandidateCount:  candidates,
		TransmissionAttempts: attempts,
		MissionSteps:         mission,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (p *Prometheus) Handler() http.Handler {
	gatherer := p.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) Generated()  { p.Packets.WithLabelValues("generated").Inc() }
func (p *Prometheus) Rejected()   { p.Packets.WithLabelValues("rejected").Inc() }
func (p *Prometheus) Duplicate()  { p.Packets.WithLabelValues("duplicate").Inc() }
func (p *Prometheus) Expired()    { p.Packets.WithLabelValues("expired").Inc() }
func (p *Prometheus) TTLDropped() { p.Packets.WithLabelValues("ttl_dropped").Inc() }

func (p *Prometheus) Delivered(delay int) {
	p.Packets.WithLabelValues("delivered").Inc()
	p.DeliveryDelay.Observe(float64(delay))
}

func (p *Prometheus) Undeliverable(n int) {
	p.Packets.WithLabelValues("undeliverable").Add(float64(n))
}

func (p *Prometheus) RelayCandidates(n int) {
	p.RelayCandidateCount.Observe(float64(n))
}

func (p *Prometheus) TransmissionAttempt() { p.TransmissionAttempts.Inc() }
func (p *Prometheus) MissionStep()         { p.MissionSteps.Inc() }

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
