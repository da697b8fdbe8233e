package onboard

import (
	"time"

	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	"github.com/CodedInternet/gorobomotor/onboard/pid"
	"github.com/Masterminds/semver"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
)

const (
	CONFIG_VERSION = "^1.0"

	defaultPeriod          = 2 * time.Millisecond
	defaultLivenessTimeout = 100 * time.Millisecond
)

type RobotConfig struct {
	Version         string
	Period          time.Duration
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
	Buses           map[string]BusConfig
	Channel         hardware.Options
	Chassis         ChassisConfig
	Motors          map[string]MotorConfig
}

type BusConfig struct {
	Driver    string // socketcan, slcan or sim
	Interface string
	Bitrate   int
}

type MotorConfig struct {
	Mode     string
	Feedback string
	Gains    pid.Gains
	Limits   pid.Limits
}

type ChassisConfig struct {
	WheelRadius float64 `yaml:"wheel_radius"` // metres
	GearRatio   float64 `yaml:"gear_ratio"`   // motor turns per wheel turn
	Wheels      []WheelConfig
}

// WheelConfig places one mecanum wheel relative to the chassis centre, x forward and y left.
type WheelConfig struct {
	Position  mgl64.Vec2
	Roller    float64 // +1 or -1, the sign of cot of the roller angle
	Direction float64 // +1 or -1, mirrors motors mounted the other way round
}

type YAMLWheel struct {
	Position  []float64 `yaml:"position,flow"`
	Roller    float64   `yaml:"roller"`
	Direction float64   `yaml:"direction"`
}

func (w WheelConfig) MarshalYAML() (interface{}, error) {
	return &YAMLWheel{
		[]float64{w.Position.X(), w.Position.Y()},
		w.Roller,
		w.Direction,
	}, nil
}

func (w *WheelConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var yw YAMLWheel
	if err := unmarshal(&yw); err != nil {
		return err
	}
	if len(yw.Position) != 2 {
		return errors.Errorf("wheel position needs 2 coordinates, got %d", len(yw.Position))
	}
	w.Position = mgl64.Vec2{yw.Position[0], yw.Position[1]}
	w.Roller = yw.Roller
	w.Direction = yw.Direction
	if w.Direction == 0 {
		w.Direction = 1
	}
	return nil
}

// LoadConfig parses and validates a robot description.
func LoadConfig(data []byte) (*RobotConfig, error) {
	config := new(RobotConfig)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal robot config")
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *RobotConfig) validate() error {
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return errors.Wrapf(err, "config version %q", c.Version)
	}
	constraint, err := semver.NewConstraint(CONFIG_VERSION)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return deverrors.UnsupportedVersionError{Version: c.Version, Constraint: CONFIG_VERSION}
	}

	if c.Period <= 0 {
		c.Period = defaultPeriod
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = defaultLivenessTimeout
	}

	for name := range c.Buses {
		if _, err := busID(name); err != nil {
			return err
		}
	}

	for name, m := range c.Motors {
		if _, ok := hardware.SlotByName(name); !ok {
			return deverrors.UnknownMotorError{Name: name}
		}
		if _, err := pid.ParseMode(m.Mode); err != nil {
			return errors.Wrapf(err, "motor %s", name)
		}
		if _, err := ParseFeedback(m.Feedback); err != nil {
			return errors.Wrapf(err, "motor %s", name)
		}
		if err := validateTuning(m.Gains, m.Limits); err != nil {
			return errors.Wrapf(err, "motor %s", name)
		}
	}

	if n := len(c.Chassis.Wheels); n != 0 && n != 4 {
		return errors.Errorf("chassis needs 4 wheels, got %d", n)
	}
	return nil
}
