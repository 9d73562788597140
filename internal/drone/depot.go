package drone

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/radio"
	"github.com/azaurus1/fanet/internal/routing"
	"github.com/azaurus1/fanet/internal/types"
)

// Delivery records one data packet reaching the depot.
type Delivery struct {
	Packet *types.Data
	Step   int
	Delay  int
}

// Depot is the fixed sink every event report is addressed to.
type Depot struct {
	*Entity

	accepted   map[uint64]struct{}
	deliveries []Delivery
}

func NewDepot(cfg *config.Config, r *radio.Radio, sink metrics.Sink, log *logrus.Entry) (*Depot, error) {
	addr := cfg.DepotAddr()
	entry := logging.Component(log, "depot", logrus.Fields{"addr": addr})

	d := &Depot{
		Entity: newEntity(cfg, addr, cfg.Depot.Position, cfg.Depot.CommunicationRange, 0,
			cfg.Depot.BufferSize, r, sink, entry),
		accepted: make(map[uint64]struct{}),
	}

	engine, err := routing.New(cfg, d, sink, log)
	if err != nil {
		return nil, fmt.Errorf("depot: %w", err)
	}
	d.engine = engine
	return d, nil
}

func (d *Depot) Speed() float64             { return 0 }
func (d *Depot) NextTarget() geometry.Point { return d.pos }

// Accept records a data packet once. Repeats are counted as duplicates and
// acknowledged again so the sender stops retrying.
func (d *Depot) Accept(data *types.Data) bool {
	if _, ok := d.accepted[data.ID]; ok {
		d.sink.Duplicate()
		return true
	}
	if d.full() {
		d.sink.Rejected()
		d.log.WithField("packet", data.ID).Warn("depot buffer full, dropping data")
		return false
	}

	d.accepted[data.ID] = struct{}{}
	d.buffer = append(d.buffer, data)

	created := data.Timestamp
	if data.Event != nil {
		created = data.Event.Created
	}
	delay := d.now - created
	d.deliveries = append(d.deliveries, Delivery{Packet: data, Step: d.now, Delay: delay})
	d.sink.Delivered(delay)
	d.log.WithFields(logrus.Fields{
		"packet": data.ID,
		"src":    data.Src,
		"hops":   data.HopCount,
		"delay":  delay,
	}).Debug("data delivered")
	return true
}

// Deliveries returns the delivery log in arrival order.
func (d *Depot) Deliveries() []Delivery {
	return append([]Delivery(nil), d.deliveries...)
}

func (d *Depot) Delivered(id uint64) bool {
	_, ok := d.accepted[id]
	return ok
}

// ClearBuffer empties the intake buffer. The dedup record is kept.
func (d *Depot) ClearBuffer() {
	d.buffer = nil
}
