// Package config loads the immutable physical and operational parameters
// of the arm: link lengths, joint/workspace limits, jog increments,
// velocity caps, and the serial link settings to the motor controller.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sixdof/pendant/internal/kinematics"
	"gopkg.in/yaml.v3"
)

// Config is the full set of parameters read once at startup and shared,
// read-only, across the motion core.
type Config struct {
	SimulationMode bool `yaml:"simulation_mode"`

	Dimensions kinematics.Dimensions `yaml:"dimensions"`

	JointLimits     kinematics.JointLimits     `yaml:"-"`
	WorkspaceLimits kinematics.WorkspaceLimits `yaml:"-"`

	JointLimitsRaw     [6]LimitYAML `yaml:"joint_limits"`
	WorkspaceLimitsRaw [6]LimitYAML `yaml:"workspace_limits"`

	JointJogIncrements     []float64 `yaml:"joint_jog_increments"`
	CartesianJogIncrements []float64 `yaml:"cartesian_jog_increments"`

	MaxJointVelocity     [6]float64 `yaml:"max_joint_velocity"`
	MaxCartesianVelocity [6]float64 `yaml:"max_cartesian_velocity"`

	UpdateInterval time.Duration `yaml:"update_interval"`

	HomePose    kinematics.JointVector `yaml:"home_pose"`
	DefaultPose kinematics.JointVector `yaml:"default_pose"`

	Serial Serial `yaml:"serial"`
}

// LimitYAML mirrors kinematics.Limit with YAML tags; kept separate so
// kinematics stays free of a serialization dependency.
type LimitYAML struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Serial holds the motor-controller link's transport settings.
type Serial struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	Timeout      time.Duration `yaml:"timeout"`
	CommandDelay time.Duration `yaml:"command_delay"`
}

// DefaultConfig matches the physical dimensions and home pose used in
// this project's reference configuration (link1=150, link2 in [0,200],
// link3=150, link4=100, ee_length=100, base_height=100).
func DefaultConfig() Config {
	return Config{
		SimulationMode: true,
		Dimensions: kinematics.Dimensions{
			BaseHeight: 100,
			Link1:      150,
			Link2Min:   0,
			Link2Max:   200,
			Link3:      150,
			Link4:      100,
			EELength:   100,
		},
		JointLimits: kinematics.JointLimits{
			{Min: -180, Max: 180}, // base_rotation
			{Min: -90, Max: 90},   // shoulder_rotation
			{Min: 0, Max: 200},    // prismatic_extension
			{Min: -150, Max: 150}, // elbow_rotation
			{Min: -150, Max: 150}, // elbow2_rotation
			{Min: -180, Max: 180}, // end_effector_rotation
		},
		WorkspaceLimits: kinematics.WorkspaceLimits{
			{Min: -600, Max: 600}, // x
			{Min: -600, Max: 600}, // y
			{Min: -100, Max: 700}, // z
			{Min: -180, Max: 180}, // roll
			{Min: -90, Max: 90},   // pitch
			{Min: -180, Max: 180}, // yaw
		},
		JointJogIncrements:     []float64{0.1, 1, 5, 10, 50},
		CartesianJogIncrements: []float64{0.1, 1, 5, 10, 50},
		MaxJointVelocity:       [6]float64{20, 20, 30, 20, 20, 20},
		MaxCartesianVelocity:   [6]float64{50, 50, 50, 20, 20, 20},
		UpdateInterval:         50 * time.Millisecond,
		HomePose:               kinematics.JointVector{PrismaticExtension: 50},
		DefaultPose:            kinematics.JointVector{PrismaticExtension: 50},
		Serial: Serial{
			Port:         "/dev/ttyUSB0",
			BaudRate:     115200,
			Timeout:      1 * time.Second,
			CommandDelay: 75 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides
// for deployment-specific knobs, and validates the result. Following the
// same development/production split as `PENDANT_ENV`: the serial port
// may be overridden in any environment, but a production environment
// with an empty serial port and simulation disabled fails rather than
// silently running degraded.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Decode into a shadow struct so JointLimitsRaw/WorkspaceLimitsRaw
	// only overwrite the typed fields when present in the file.
	cfg.JointLimitsRaw = limitsToRaw(cfg.JointLimits)
	cfg.WorkspaceLimitsRaw = limitsToRaw6(cfg.WorkspaceLimits)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.JointLimits = rawToLimits(cfg.JointLimitsRaw)
	cfg.WorkspaceLimits = rawToWorkspaceLimits(cfg.WorkspaceLimitsRaw)

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func limitsToRaw(l kinematics.JointLimits) [6]LimitYAML {
	var out [6]LimitYAML
	for i, v := range l {
		out[i] = LimitYAML{Min: v.Min, Max: v.Max}
	}
	return out
}

func limitsToRaw6(l kinematics.WorkspaceLimits) [6]LimitYAML {
	var out [6]LimitYAML
	for i, v := range l {
		out[i] = LimitYAML{Min: v.Min, Max: v.Max}
	}
	return out
}

func rawToLimits(raw [6]LimitYAML) kinematics.JointLimits {
	var out kinematics.JointLimits
	for i, v := range raw {
		out[i] = kinematics.Limit{Min: v.Min, Max: v.Max}
	}
	return out
}

func rawToWorkspaceLimits(raw [6]LimitYAML) kinematics.WorkspaceLimits {
	var out kinematics.WorkspaceLimits
	for i, v := range raw {
		out[i] = kinematics.Limit{Min: v.Min, Max: v.Max}
	}
	return out
}

// isDevelopmentMode mirrors the teacher platform's environment switch:
// anything but an explicit "production" is treated as development.
func isDevelopmentMode() bool {
	return os.Getenv("PENDANT_ENV") != "production"
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("PENDANT_SERIAL_PORT"); port != "" {
		cfg.Serial.Port = port
	}
	if isDevelopmentMode() && cfg.Serial.Port == "" {
		cfg.Serial.Port = "/dev/ttyUSB0"
	}
}

// Validate rejects a config whose numeric invariants would make the
// motion core's invariants unenforceable at the first jog tick: limit
// ordering, a home/default pose already outside its own limits, or a
// nonpositive update interval.
func (c Config) Validate() error {
	if c.Dimensions.Link2Min > c.Dimensions.Link2Max {
		return fmt.Errorf("config: link2_min (%v) > link2_max (%v)", c.Dimensions.Link2Min, c.Dimensions.Link2Max)
	}
	for i, l := range c.JointLimits {
		if l.Min > l.Max {
			return fmt.Errorf("config: joint limit %s has min (%v) > max (%v)", kinematics.Joint(i), l.Min, l.Max)
		}
	}
	for i, l := range c.WorkspaceLimits {
		if l.Min > l.Max {
			return fmt.Errorf("config: workspace limit %s has min (%v) > max (%v)", kinematics.Axis(i), l.Min, l.Max)
		}
	}
	if j, ok := c.JointLimits.Validate(c.HomePose); !ok {
		return fmt.Errorf("config: home pose violates limit on %s", j)
	}
	if j, ok := c.JointLimits.Validate(c.DefaultPose); !ok {
		return fmt.Errorf("config: default pose violates limit on %s", j)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("config: update_interval must be positive, got %v", c.UpdateInterval)
	}
	if !c.SimulationMode && os.Getenv("PENDANT_ENV") == "production" && c.Serial.Port == "" {
		return fmt.Errorf("config: serial.port is required in production when simulation_mode is false")
	}
	return nil
}

// StandardIncrement snaps a requested increment to the closest configured
// standard increment for the given list, per the jog-increment handler's
// snapping rule.
func StandardIncrement(increments []float64, requested float64) float64 {
	if len(increments) == 0 {
		return requested
	}
	best := increments[0]
	bestDist := absFloat(requested - best)
	for _, inc := range increments[1:] {
		if d := absFloat(requested - inc); d < bestDist {
			best = inc
			bestDist = d
		}
	}
	return best
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
