package results

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/metrics"
)

var runsBucket = []byte("runs")

var ErrNotFound = errors.New("run not found")

// Run is the stored outcome of one simulation.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Started    time.Time `json:"started"`
	Elapsed    float64   `json:"elapsed_seconds"`
	Protocol   string    `json:"protocol"`
	ErrorModel string    `json:"error_model"`
	Seed       int64     `json:"seed"`
	Drones     int       `json:"drones"`
	Steps      int       `json:"steps"`
	Cancelled  bool      `json:"cancelled"`

	Generated     uint64  `json:"generated"`
	Delivered     uint64  `json:"delivered"`
	Rejected      uint64  `json:"rejected"`
	Duplicates    uint64  `json:"duplicates"`
	Expired       uint64  `json:"expired"`
	TTLDropped    uint64  `json:"ttl_dropped"`
	Undeliverable uint64  `json:"undeliverable"`
	DeliveryRatio float64 `json:"delivery_ratio"`
	MeanDelay     float64 `json:"mean_delivery_delay"`
}

// NewRun fills a record from the run configuration and its counters.
func NewRun(id uuid.UUID, started time.Time, cfg *config.Config, steps int, c *metrics.Counters) Run {
	run := Run{
		ID:            id,
		Started:       started.UTC(),
		Elapsed:       time.Since(started).Seconds(),
		Protocol:      cfg.Routing.Protocol,
		ErrorModel:    cfg.Channel.ErrorModel,
		Seed:          cfg.Simulation.Seed,
		Drones:        cfg.Simulation.Drones,
		Steps:         steps,
		Cancelled:     steps < cfg.Simulation.Steps,
		Generated:     c.GeneratedPackets,
		Delivered:     c.DeliveredPackets,
		Rejected:      c.RejectedPackets,
		Duplicates:    c.DuplicatePackets,
		Expired:       c.ExpiredPackets,
		TTLDropped:    c.TTLDroppedPackets,
		Undeliverable: c.UndeliverablePackets,
		DeliveryRatio: c.DeliveryRatio(),
	}
	if c.DeliveredPackets > 0 {
		run.MeanDelay = float64(c.DeliveryDelay) / float64(c.DeliveredPackets)
	}
	return run
}

// Store keeps runs in a bbolt file, keyed by insertion order.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(run Run) error {
	value, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), value)
	})
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]Run, error) {
	runs := make([]Run, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to decode run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	return runs, err
}

func (s *Store) Get(id uuid.UUID) (Run, error) {
	runs, err := s.List()
	if err != nil {
		return Run{}, err
	}
	for _, run := range runs {
		if run.ID == id {
			return run, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
