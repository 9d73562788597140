package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/drone"
	"github.com/azaurus1/fanet/internal/logging"
	"github.com/azaurus1/fanet/internal/metrics"
	"github.com/azaurus1/fanet/internal/mobility"
	"github.com/azaurus1/fanet/internal/radio"
)

// Simulation advances every node in lock step over a shared radio.
type Simulation struct {
	cfg    *config.Config
	radio  *radio.Radio
	drones []*drone.Drone
	depot  *drone.Depot
	sink   metrics.Sink
	rand   *rand.Rand
	log    *logrus.Entry

	current int
}

func New(cfg *config.Config, provider mobility.Provider, sink metrics.Sink, log *logrus.Entry) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r, err := radio.New(cfg, []float64{cfg.Drone.CommunicationRange, cfg.Depot.CommunicationRange}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create radio: %w", err)
	}

	depot, err := drone.NewDepot(cfg, r, sink, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create depot: %w", err)
	}

	drones := make([]*drone.Drone, 0, cfg.Simulation.Drones)
	for i := 0; i < cfg.Simulation.Drones; i++ {
		path, err := provider.Path(i)
		if err != nil {
			return nil, fmt.Errorf("failed to load path: %w", err)
		}
		d, err := drone.New(i, cfg, path, r, sink, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create drone: %w", err)
		}
		drones = append(drones, d)
	}

	return &Simulation{
		cfg:    cfg,
		radio:  r,
		drones: drones,
		depot:  depot,
		sink:   sink,
		rand:   rand.New(rand.NewSource(cfg.Simulation.Seed)),
		log:    logging.Component(log, "simulation", nil),
	}, nil
}

func (s *Simulation) Drones() []*drone.Drone { return s.drones }
func (s *Simulation) Depot() *drone.Depot    { return s.depot }
func (s *Simulation) Radio() *radio.Radio    { return s.radio }

// Current is the step the next call to Step will run.
func (s *Simulation) Current() int { return s.current }

// Step runs one simulated step: events, clock, listen, expiry, routing, send
// and movement, in that order, drones before the depot.
func (s *Simulation) Step() {
	now := s.current

	s.feelEvent(now)

	for _, d := range s.drones {
		d.SetTime(now)
	}
	s.depot.SetTime(now)

	for _, d := range s.drones {
		d.Listen()
	}
	s.depot.Listen()
	s.radio.Clear(now)

	for _, d := range s.drones {
		d.UpdatePackets()
	}
	s.depot.UpdatePackets()

	for _, d := range s.drones {
		d.Route()
	}
	s.depot.Route()

	for _, d := range s.drones {
		d.SendPackets()
	}
	s.depot.SendPackets()

	for _, d := range s.drones {
		d.Move(s.cfg.Simulation.StepDuration)
	}

	s.depot.ClearBuffer()
	s.current++
}

// feelEvent lets one random drone sense an event every event generation
// delay steps, with the configured probability.
func (s *Simulation) feelEvent(now int) {
	delay := s.cfg.Simulation.EventGenerationDelay
	if delay <= 0 || now%delay != 0 || len(s.drones) == 0 {
		return
	}

	d := s.drones[s.rand.Intn(len(s.drones))]
	if s.rand.Float64() >= s.cfg.Simulation.EventGenerationProb {
		return
	}
	if _, err := d.FeelEvent(now); err != nil {
		if errors.Is(err, drone.ErrBufferFull) {
			s.log.WithField("drone", d.Id).Debug("event lost, buffer full")
			return
		}
		s.log.WithError(err).Warn("failed to sense event")
	}
}

// Run steps until the configured step count or until ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"steps":    s.cfg.Simulation.Steps,
		"drones":   len(s.drones),
		"protocol": s.cfg.Routing.Protocol,
	}).Info("simulation started")

	for s.current < s.cfg.Simulation.Steps {
		if err := ctx.Err(); err != nil {
			s.log.WithField("step", s.current).Info("simulation cancelled")
			return err
		}
		s.Step()
	}

	s.log.WithField("step", s.current).Info("simulation finished")
	return nil
}
