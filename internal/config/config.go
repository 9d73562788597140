package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/azaurus1/fanet/internal/geometry"
	"github.com/azaurus1/fanet/internal/types"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

const (
	ProtocolAODV   = "aodv"
	ProtocolOLSR   = "olsr"
	ProtocolGeo    = "geo"
	ProtocolRandom = "random"

	ErrorModelNone     = "none"
	ErrorModelUniform  = "uniform"
	ErrorModelGaussian = "gaussian"
)

type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Drone      DroneConfig      `yaml:"drone"`
	Depot      DepotConfig      `yaml:"depot"`
	Routing    RoutingConfig    `yaml:"routing"`
	AODV       AODVConfig       `yaml:"aodv"`
	OLSR       OLSRConfig       `yaml:"olsr"`
	Channel    ChannelConfig    `yaml:"channel"`
	Mobility   MobilityConfig   `yaml:"mobility"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Results    ResultsConfig    `yaml:"results"`
}

type SimulationConfig struct {
	Steps                int     `yaml:"steps"`
	StepDuration         float64 `yaml:"step_duration"`
	Seed                 int64   `yaml:"seed"`
	Drones               int     `yaml:"drones"`
	EventDuration        int     `yaml:"event_duration"`
	EventGenerationDelay int     `yaml:"event_generation_delay"`
	EventGenerationProb  float64 `yaml:"event_generation_prob"`
}

type DroneConfig struct {
	CommunicationRange float64 `yaml:"communication_range"`
	SensingRange       float64 `yaml:"sensing_range"`
	Speed              float64 `yaml:"speed"`
	BufferSize         int     `yaml:"buffer_size"`
	Energy             float64 `yaml:"energy"`
}

type DepotConfig struct {
	Address            int            `yaml:"address"`
	Position           geometry.Point `yaml:"position"`
	CommunicationRange float64        `yaml:"communication_range"`
	BufferSize         int            `yaml:"buffer_size"`
}

type RoutingConfig struct {
	Protocol               string `yaml:"protocol"`
	HelloInterval          int    `yaml:"hello_interval"`
	NeighbourStaleness     int    `yaml:"neighbour_staleness"`
	RetransmissionInterval int    `yaml:"retransmission_interval"`
	MaxTTL                 int    `yaml:"max_ttl"`
	DeliveryDelay          int    `yaml:"delivery_delay"`
}

type AODVConfig struct {
	NodeTraversalTime  int `yaml:"node_traversal_time"`
	NetDiameter        int `yaml:"net_diameter"`
	TTLStart           int `yaml:"ttl_start"`
	TTLIncrement       int `yaml:"ttl_increment"`
	TTLThreshold       int `yaml:"ttl_threshold"`
	RREQRetries        int `yaml:"rreq_retries"`
	AllowedHelloLoss   int `yaml:"allowed_hello_loss"`
	CleanInterval      int `yaml:"clean_interval"`
	DeletePeriodFactor int `yaml:"delete_period_factor"`
}

type OLSRConfig struct {
	VTime             int `yaml:"vtime"`
	DuplicateHoldTime int `yaml:"duplicate_hold_time"`
	TCInterval        int `yaml:"tc_interval"`
	Willingness       int `yaml:"willingness"`
	TCTTL             int `yaml:"tc_ttl"`
}

type ChannelConfig struct {
	ErrorModel         string  `yaml:"error_model"`
	SuccessProbability float64 `yaml:"success_probability"`
	GaussianScale      float64 `yaml:"gaussian_scale"`
}

type MobilityConfig struct {
	Paths [][]geometry.Point `yaml:"paths"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	Filename   string `yaml:"filename"`
	MaxAge     int    `yaml:"max_age"`
	RotateTime int    `yaml:"rotate_time"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ResultsConfig points at the run history database. Empty disables it.
type ResultsConfig struct {
	Path string `yaml:"path"`
}

// Default returns a three drone scenario flying back and forth in front of
// the depot.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Steps:                10000,
			StepDuration:         0.150,
			Seed:                 10,
			Drones:               3,
			EventDuration:        1500,
			EventGenerationDelay: 20,
			EventGenerationProb:  0.8,
		},
		Drone: DroneConfig{
			CommunicationRange: 400,
			SensingRange:       0,
			Speed:              8,
			BufferSize:         10000,
			Energy:             1000000,
		},
		Depot: DepotConfig{
			Address:            1,
			Position:           geometry.Point{X: 750, Y: 0},
			CommunicationRange: 400,
			BufferSize:         10000,
		},
		Routing: RoutingConfig{
			Protocol:               ProtocolAODV,
			HelloInterval:          30,
			NeighbourStaleness:     50,
			RetransmissionInterval: 30,
			MaxTTL:                 64,
			DeliveryDelay:          1,
		},
		AODV: AODVConfig{
			NodeTraversalTime:  1,
			NetDiameter:        35,
			TTLStart:           1,
			TTLIncrement:       2,
			TTLThreshold:       7,
			RREQRetries:        2,
			AllowedHelloLoss:   2,
			CleanInterval:      10,
			DeletePeriodFactor: 5,
		},
		OLSR: OLSRConfig{
			VTime:             45,
			DuplicateHoldTime: 60,
			TCInterval:        60,
			Willingness:       3,
			TCTTL:             255,
		},
		Channel: ChannelConfig{
			ErrorModel:         ErrorModelNone,
			SuccessProbability: 1,
			GaussianScale:      0.6,
		},
		Mobility: MobilityConfig{
			Paths: [][]geometry.Point{
				{{X: 750, Y: 300}, {X: 750, Y: 1100}},
				{{X: 750, Y: 600}, {X: 1100, Y: 600}, {X: 400, Y: 600}},
				{{X: 750, Y: 900}, {X: 750, Y: 1400}},
			},
		},
		Log: LogConfig{
			Level:      "WARN",
			Filename:   "fanet.log",
			MaxAge:     24,
			RotateTime: 1,
		},
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Simulation.Steps < 0:
		return fmt.Errorf("%w: simulation steps must not be negative", ErrInvalid)
	case c.Simulation.StepDuration <= 0:
		return fmt.Errorf("%w: step duration must be positive", ErrInvalid)
	case c.Simulation.Drones < 0:
		return fmt.Errorf("%w: drone count must not be negative", ErrInvalid)
	case c.Simulation.EventGenerationProb < 0 || c.Simulation.EventGenerationProb > 1:
		return fmt.Errorf("%w: event generation probability must be in [0, 1]", ErrInvalid)
	case c.Drone.CommunicationRange <= 0 || c.Depot.CommunicationRange <= 0:
		return fmt.Errorf("%w: communication ranges must be positive", ErrInvalid)
	case c.Drone.BufferSize <= 0 || c.Depot.BufferSize <= 0:
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalid)
	case c.Drone.Speed < 0:
		return fmt.Errorf("%w: drone speed must not be negative", ErrInvalid)
	case c.Routing.HelloInterval <= 0 || c.Routing.RetransmissionInterval <= 0:
		return fmt.Errorf("%w: hello and retransmission intervals must be positive", ErrInvalid)
	case c.Routing.NeighbourStaleness <= 0:
		return fmt.Errorf("%w: neighbour staleness must be positive", ErrInvalid)
	case c.Routing.MaxTTL <= 0:
		return fmt.Errorf("%w: max ttl must be positive", ErrInvalid)
	case c.Routing.DeliveryDelay < 1:
		return fmt.Errorf("%w: delivery delay must be at least one step", ErrInvalid)
	}

	if c.Depot.Address <= 0 || c.Depot.Address+c.Simulation.Drones >= int(types.BroadcastAddr) {
		return fmt.Errorf("%w: depot address %d leaves no room for %d drones below the broadcast address",
			ErrInvalid, c.Depot.Address, c.Simulation.Drones)
	}

	switch c.Routing.Protocol {
	case ProtocolAODV, ProtocolOLSR, ProtocolGeo, ProtocolRandom:
	default:
		return fmt.Errorf("%w: unsupported routing protocol %q", ErrInvalid, c.Routing.Protocol)
	}

	switch c.Channel.ErrorModel {
	case ErrorModelNone:
	case ErrorModelUniform:
		if c.Channel.SuccessProbability < 0 || c.Channel.SuccessProbability > 1 {
			return fmt.Errorf("%w: channel success probability must be in [0, 1]", ErrInvalid)
		}
	case ErrorModelGaussian:
		if c.Channel.GaussianScale < 0 || c.Channel.GaussianScale > 1 {
			return fmt.Errorf("%w: gaussian scale must be in [0, 1]", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported channel error model %q", ErrInvalid, c.Channel.ErrorModel)
	}

	if c.Routing.Protocol == ProtocolAODV {
		a := c.AODV
		if a.NodeTraversalTime <= 0 || a.NetDiameter <= 0 || a.TTLStart <= 0 || a.TTLIncrement <= 0 {
			return fmt.Errorf("%w: aodv timing parameters must be positive", ErrInvalid)
		}
		if a.CleanInterval <= 0 || a.DeletePeriodFactor <= 0 || a.RREQRetries < 0 {
			return fmt.Errorf("%w: aodv maintenance parameters out of range", ErrInvalid)
		}
	}
	if c.Routing.Protocol == ProtocolOLSR {
		o := c.OLSR
		if o.VTime <= 0 || o.DuplicateHoldTime <= 0 || o.TCInterval <= 0 || o.TCTTL <= 0 {
			return fmt.Errorf("%w: olsr timing parameters must be positive", ErrInvalid)
		}
	}

	if len(c.Mobility.Paths) < c.Simulation.Drones {
		return fmt.Errorf("%w: %d mobility paths for %d drones", ErrInvalid, len(c.Mobility.Paths), c.Simulation.Drones)
	}
	return nil
}

// LoadConfig reads filename on top of Default and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) DepotAddr() types.Addr {
	return types.Addr(c.Depot.Address)
}

// DroneAddr is the network address of the i-th drone.
func (c *Config) DroneAddr(i int) types.Addr {
	return types.Addr(c.Depot.Address + 1 + i)
}
