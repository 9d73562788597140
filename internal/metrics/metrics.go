package metrics

import (
	"sync/atomic"
)

// Sink receives simulation events. The simulator only ever writes to it.
type Sink interface {
	Generated()
	Rejected()
	Delivered(delay int)
	Duplicate()
	Expired()
	TTLDropped()
	Undeliverable(n int)
	RelayCandidates(n int)
	TransmissionAttempt()
	MissionStep()
}

// Counters is an in-memory Sink.
type Counters struct {
	GeneratedPackets     uint64
	RejectedPackets      uint64
	DeliveredPackets     uint64
	DeliveryDelay        uint64 // steps, summed over deliveries
	DuplicatePackets     uint64
	ExpiredPackets       uint64
	TTLDroppedPackets    uint64
	UndeliverablePackets uint64
	RelaySelections      uint64
	RelayCandidateSum    uint64
	TransmissionAttempts uint64
	MissionSteps         uint64
}

func (m *Counters) Generated() {
	atomic.AddUint64(&m.GeneratedPackets, 1)
}

func (m *Counters) Rejected() {
	atomic.AddUint64(&m.RejectedPackets, 1)
}

func (m *Counters) Delivered(delay int) {
	atomic.AddUint64(&m.DeliveredPackets, 1)
	if delay > 0 {
		atomic.AddUint64(&m.DeliveryDelay, uint64(delay))
	}
}

func (m *Counters) Duplicate() {
	atomic.AddUint64(&m.DuplicatePackets, 1)
}

func (m *Counters) Expired() {
	atomic.AddUint64(&m.ExpiredPackets, 1)
}

func (m *Counters) TTLDropped() {
	atomic.AddUint64(&m.TTLDroppedPackets, 1)
}

func (m *Counters) Undeliverable(n int) {
	if n > 0 {
		atomic.AddUint64(&m.UndeliverablePackets, uint64(n))
	}
}

func (m *Counters) RelayCandidates(n int) {
	atomic.AddUint64(&m.RelaySelections, 1)
	atomic.AddUint64(&m.RelayCandidateSum, uint64(n))
}

func (m *Counters) TransmissionAttempt() {
	atomic.AddUint64(&m.TransmissionAttempts, 1)
}

func (m *Counters) MissionStep() {
	atomic.AddUint64(&m.MissionSteps, 1)
}

func (m *Counters) DeliveryRatio() float64 {
	generated := atomic.LoadUint64(&m.GeneratedPackets)
	if generated == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.DeliveredPackets)) / float64(generated)
}

func (m *Counters) GetStats() map[string]interface{} {
	delivered := atomic.LoadUint64(&m.DeliveredPackets)
	selections := atomic.LoadUint64(&m.RelaySelections)
	return map[string]interface{}{
		"generated":             atomic.LoadUint64(&m.GeneratedPackets),
		"rejected":              atomic.LoadUint64(&m.RejectedPackets),
		"delivered":             delivered,
		"duplicates":            atomic.LoadUint64(&m.DuplicatePackets),
		"expired":               atomic.LoadUint64(&m.ExpiredPackets),
		"ttl_dropped":           atomic.LoadUint64(&m.TTLDroppedPackets),
		"undeliverable":         atomic.LoadUint64(&m.UndeliverablePackets),
		"transmission_attempts": atomic.LoadUint64(&m.TransmissionAttempts),
		"mission_steps":         atomic.LoadUint64(&m.MissionSteps),
		"delivery_ratio":        m.DeliveryRatio(),
		"avg_delivery_delay": float64(atomic.LoadUint64(&m.DeliveryDelay)) /
			float64(delivered+1),
		"avg_relay_candidates": float64(atomic.LoadUint64(&m.RelayCandidateSum)) /
			float64(selections+1),
	}
}

type tee []Sink

// Tee fans every event out to all sinks.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Generated() {
	for _, s := range t {
		s.Generated()
	}
}

func (t tee) Rejected() {
	for _, s := range t {
		s.Rejected()
	}
}

func (t tee) Delivered(delay int) {
	for _, s := range t {
		s.Delivered(delay)
	}
}

func (t tee) Duplicate() {
	for _, s := range t {
		s.Duplicate()
	}
}

func (t tee) Expired() {
	for _, s := range t {
		s.Expired()
	}
}

func (t tee) TTLDropped() {
	for _, s := range t {
		s.TTLDropped()
	}
}

func (t tee) Undeliverable(n int) {
	for _, s := range t {
		s.Undeliverable(n)
	}
}

func (t tee) RelayCandidates(n int) {
	for _, s := range t {
		s.RelayCandidates(n)
	}
}

func (t tee) TransmissionAttempt() {
	for _, s := range t {
		s.TransmissionAttempt()
	}
}

func (t tee) MissionStep() {
	for _, s := range t {
		s.MissionStep()
	}
}
