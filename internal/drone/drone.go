package drone

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/mobility"
	"github.com/azaurus1/fanet/internal/radio"
	"github.com/azaurus1/fanet/internal/routing"
	"github.com/azaurus1/fanet/internal/types"
)

var ErrBufferFull = errors.New("drone buffer is full")

type Drone struct {
	*Entity
	Id int

	path     mobility.Path
	waypoint int
	speed    float64
	energy   float64
}

// New spawns drone id at the start of its path with a routing engine of the
// configured protocol.
func New(id int, cfg *config.Config, path mobility.Path, r *radio.Radio, sink metrics.Sink, log *logrus.Entry) (*Drone, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("drone %d: %w", id, mobility.ErrNoPath)
	}
	addr := cfg.DroneAddr(id)
	entry := logging.Component(log, "drone", logrus.Fields{"id": id, "addr": addr})

	d := &Drone{
		Entity: newEntity(cfg, addr, path.Start(), cfg.Drone.CommunicationRange, cfg.Drone.SensingRange,
			cfg.Drone.BufferSize, r, sink, entry),
		Id:     id,
		path:   path,
		speed:  cfg.Drone.Speed,
		energy: cfg.Drone.Energy,
	}

	engine, err := routing.New(cfg, d, sink, log)
	if err != nil {
		return nil, fmt.Errorf("drone %d: %w", id, err)
	}
	d.engine = engine
	return d, nil
}

func (d *Drone) Speed() float64 { return d.speed }

// ResidualEnergy is carried for reporting only; nothing consumes it.
func (d *Drone) ResidualEnergy() float64 { return d.energy }

func (d *Drone) Waypoint() int { return d.waypoint }

func (d *Drone) String() string {
	return fmt.Sprintf("Drone %d", d.Id)
}

// NextTarget is the waypoint the drone is flying to.
func (d *Drone) NextTarget() geometry.Point {
	if d.waypoint >= len(d.path)-1 {
		return d.path[0]
	}
	return d.path[d.waypoint+1]
}

// FeelEvent senses an event at the drone's position and buffers a data packet
// reporting it.
func (d *Drone) FeelEvent(now int) (*types.Data, error) {
	d.now = now
	if d.full() {
		d.sink.Rejected()
		d.log.WithField("buffered", len(d.buffer)).Debug("buffer full, event rejected")
		return nil, ErrBufferFull
	}

	ev := types.NewEvent(d.pos, now, d.cfg.Simulation.EventDuration)
	data := d.engine.MakeData(ev)
	d.buffer = append(d.buffer, data)
	d.sink.Generated()
	d.log.WithFields(logrus.Fields{"packet": data.ID, "event": ev.ID}).Debug("event sensed")
	return data, nil
}

// Accept stores data addressed to this drone.
func (d *Drone) Accept(data *types.Data) bool {
	if d.full() {
		d.sink.Rejected()
		return false
	}
	d.buffer = append(d.buffer, data)
	return true
}

// Move flies towards the next waypoint for dt seconds, snapping onto it when
// it is reached within the step.
func (d *Drone) Move(dt float64) {
	d.sink.MissionStep()
	if d.waypoint >= len(d.path)-1 {
		d.waypoint = -1
	}
	target := d.path[d.waypoint+1]

	total := geometry.Distance(d.pos, target)
	travel := dt * d.speed
	if total == 0 {
		d.arrive()
		return
	}
	if travel == 0 {
		return
	}

	ratio := travel / total
	if ratio >= 1 {
		d.arrive()
		return
	}
	d.pos = geometry.Interpolate(d.pos, target, ratio)
}

func (d *Drone) arrive() {
	d.waypoint++
	d.pos = d.path[d.waypoint]
}
