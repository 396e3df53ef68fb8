package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/LiftGo/internal/hw/vision"
	"github.com/cjeanneret/LiftGo/internal/logic/assist"
	"github.com/cjeanneret/LiftGo/internal/logic/control"
	"github.com/cjeanneret/LiftGo/internal/logic/elevator"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// ConfigDir is the directory name every configuration file must live in.
const ConfigDir = "configs"

// GainsConfig holds PID coefficients.
type GainsConfig struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
	D float64 `yaml:"d"`
}

func (g GainsConfig) gains() control.Gains {
	return control.Gains{P: g.P, I: g.I, D: g.D}
}

// WinchConfig tunes the main winch, in encoder counts.
type WinchConfig struct {
	Gains           GainsConfig `yaml:"gains"`
	MaxVelocity     float64     `yaml:"max_velocity"`     // counts/s
	MaxAcceleration float64     `yaml:"max_acceleration"` // counts/s²
	KS              float64     `yaml:"ks"`
	KG              float64     `yaml:"kg"`
	KV              float64     `yaml:"kv"`
	Tolerance       float64     `yaml:"tolerance"`
}

// InnerStageConfig tunes the inner (carriage) stage, in encoder counts.
type InnerStageConfig struct {
	Gains     GainsConfig `yaml:"gains"`
	Tolerance float64     `yaml:"tolerance"`
}

// ElevatorConfig describes the lift mechanics.
type ElevatorConfig struct {
	Main                WinchConfig      `yaml:"main"`
	Inner               InnerStageConfig `yaml:"inner"`
	WinchMetersPerCount float64          `yaml:"winch_meters_per_count"` // negative: counts fall as the lift rises
	InnerMetersPerCount float64          `yaml:"inner_meters_per_count"`
	StartHeightM        float64          `yaml:"start_height_m"`
	LowerSoftLimit      float64          `yaml:"lower_soft_limit"` // counts
	HomingPower         float64          `yaml:"homing_power"`
}

// AssistConfig tunes the vision drive assist. Angles in degrees.
type AssistConfig struct {
	Rotation             GainsConfig `yaml:"rotation"`
	RotationTolerance    float64     `yaml:"rotation_tolerance_deg"`
	Translation          GainsConfig `yaml:"translation"`
	TranslationTolerance float64     `yaml:"translation_tolerance_deg"`
	AlsoDrive            bool        `yaml:"also_drive"`
}

// TargetConfig is a fixed detection used when no vision feed is configured.
type TargetConfig struct {
	Yaw   float64 `yaml:"yaw"`
	Pitch float64 `yaml:"pitch"`
	Area  float64 `yaml:"area"`
}

// VisionConfig selects where detections come from.
type VisionConfig struct {
	UDPAddr       string         `yaml:"udp_addr"`        // e.g. ":5800"; empty uses StaticTargets
	StaleAfterMs  int            `yaml:"stale_after_ms"`  // frames older than this are ignored
	StaticTargets []TargetConfig `yaml:"static_targets"`
}

// LimitSwitchConfig wires the end-of-travel switches. Pin 0 = not wired.
type LimitSwitchConfig struct {
	LowerPin     int  `yaml:"lower_pin"`
	UpperPin     int  `yaml:"upper_pin"`
	NormallyOpen bool `yaml:"normally_open"`
}

// SimulationConfig drives the simulated motors used without vendor drivers.
type SimulationConfig struct {
	WinchCountsPerCycle float64 `yaml:"winch_counts_per_cycle"`
	InnerCountsPerCycle float64 `yaml:"inner_counts_per_cycle"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	PeriodMs   int  `yaml:"period_ms"`   // control cycle
	DebugLevel int  `yaml:"debug_level"` // 0=off, 1=info, 2=live, 3=verbose, 4=trace
	MockGPIO   bool `yaml:"mock_gpio"`   // true=dev/test, false=real Raspberry Pi
	WebPort    int  `yaml:"web_port"`
}

// Config aggregates all application configuration.
type Config struct {
	Elevator      ElevatorConfig    `yaml:"elevator"`
	VisionAssist  AssistConfig      `yaml:"vision_assist"`
	Vision        VisionConfig      `yaml:"vision"`
	LimitSwitches LimitSwitchConfig `yaml:"limit_switches"`
	Simulation    SimulationConfig  `yaml:"simulation"`
	Defaults      DefaultsConfig    `yaml:"defaults"`
}

// Default returns the competition robot calibration.
func Default() Config {
	e := elevator.DefaultConfig()
	a := assist.DefaultConfig()
	return Config{
		Elevator: ElevatorConfig{
			Main: WinchConfig{
				Gains:           GainsConfig{P: e.MainGains.P, I: e.MainGains.I, D: e.MainGains.D},
				MaxVelocity:     e.MainConstraints.MaxVelocity,
				MaxAcceleration: e.MainConstraints.MaxAcceleration,
				KS:              e.MainFeedforward.KS,
				KG:              e.MainFeedforward.KG,
				KV:              e.MainFeedforward.KV,
				Tolerance:       e.MainTolerance,
			},
			Inner: InnerStageConfig{
				Gains:     GainsConfig{P: e.InnerGains.P, I: e.InnerGains.I, D: e.InnerGains.D},
				Tolerance: e.InnerTolerance,
			},
			WinchMetersPerCount: e.WinchMetersPerCount,
			InnerMetersPerCount: e.InnerMetersPerCount,
			StartHeightM:        e.StartHeight,
			LowerSoftLimit:      e.LowerSoftLimit,
			HomingPower:         0.2,
		},
		VisionAssist: AssistConfig{
			Rotation:             GainsConfig{P: a.RotationGains.P, I: a.RotationGains.I, D: a.RotationGains.D},
			RotationTolerance:    a.RotationTolerance,
			Translation:          GainsConfig{P: a.TranslationGains.P, I: a.TranslationGains.I, D: a.TranslationGains.D},
			TranslationTolerance: a.TranslationTolerance,
			AlsoDrive:            a.AlsoDrive,
		},
		Vision: VisionConfig{
			StaleAfterMs: 500,
		},
		Simulation: SimulationConfig{
			WinchCountsPerCycle: 1,
			InnerCountsPerCycle: 1,
		},
		Defaults: DefaultsConfig{
			PeriodMs: int(control.DefaultPeriod / time.Millisecond),
			WebPort:  8080,
		},
	}
}

// ValidateConfigPath rejects paths that could read outside a configs/
// directory: traversal segments, other extensions, other parents.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(filepath.Clean(path))) != ConfigDir {
		return fmt.Errorf("config path %q must be inside a %s/ directory", path, ConfigDir)
	}
	return nil
}

// Load reads a YAML file and returns the configuration. Keys absent from the
// file keep their Default value.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	e := c.Elevator

	for name, v := range map[string]float64{
		"elevator.main.gains.p":             e.Main.Gains.P,
		"elevator.main.gains.i":             e.Main.Gains.I,
		"elevator.main.gains.d":             e.Main.Gains.D,
		"elevator.main.ks":                  e.Main.KS,
		"elevator.main.kg":                  e.Main.KG,
		"elevator.main.kv":                  e.Main.KV,
		"elevator.inner.gains.p":            e.Inner.Gains.P,
		"elevator.inner.gains.i":            e.Inner.Gains.I,
		"elevator.inner.gains.d":            e.Inner.Gains.D,
		"elevator.start_height_m":           e.StartHeightM,
		"elevator.lower_soft_limit":         e.LowerSoftLimit,
		"vision_assist.rotation.p":          c.VisionAssist.Rotation.P,
		"vision_assist.rotation.i":          c.VisionAssist.Rotation.I,
		"vision_assist.rotation.d":          c.VisionAssist.Rotation.D,
		"vision_assist.translation.p":       c.VisionAssist.Translation.P,
		"vision_assist.translation.i":       c.VisionAssist.Translation.I,
		"vision_assist.translation.d":       c.VisionAssist.Translation.D,
		"simulation.winch_counts_per_cycle": c.Simulation.WinchCountsPerCycle,
		"simulation.inner_counts_per_cycle": c.Simulation.InnerCountsPerCycle,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be finite", name))
		}
	}

	err = multierr.Append(err, positive("elevator.main.max_velocity", e.Main.MaxVelocity))
	err = multierr.Append(err, positive("elevator.main.max_acceleration", e.Main.MaxAcceleration))
	err = multierr.Append(err, positive("elevator.main.tolerance", e.Main.Tolerance))
	err = multierr.Append(err, positive("elevator.inner.tolerance", e.Inner.Tolerance))
	err = multierr.Append(err, positive("vision_assist.rotation_tolerance_deg", c.VisionAssist.RotationTolerance))
	err = multierr.Append(err, positive("vision_assist.translation_tolerance_deg", c.VisionAssist.TranslationTolerance))

	if e.WinchMetersPerCount == 0 || math.IsNaN(e.WinchMetersPerCount) {
		err = multierr.Append(err, errors.New("elevator.winch_meters_per_count must be non-zero"))
	}
	if e.InnerMetersPerCount == 0 || math.IsNaN(e.InnerMetersPerCount) {
		err = multierr.Append(err, errors.New("elevator.inner_meters_per_count must be non-zero"))
	}
	if math.IsNaN(e.HomingPower) || e.HomingPower < -1 || e.HomingPower > 1 {
		err = multierr.Append(err, fmt.Errorf("elevator.homing_power must be in [-1, 1], got %v", e.HomingPower))
	}

	if c.Vision.StaleAfterMs < 0 {
		err = multierr.Append(err, fmt.Errorf("vision.stale_after_ms must be >= 0, got %d", c.Vision.StaleAfterMs))
	}

	ls := c.LimitSwitches
	err = multierr.Append(err, bcmPin("limit_switches.lower_pin", ls.LowerPin))
	err = multierr.Append(err, bcmPin("limit_switches.upper_pin", ls.UpperPin))
	if ls.LowerPin > 0 && ls.LowerPin == ls.UpperPin {
		err = multierr.Append(err, fmt.Errorf("limit_switches: lower and upper share pin %d", ls.LowerPin))
	}

	d := c.Defaults
	if d.PeriodMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("defaults.period_ms must be > 0, got %d", d.PeriodMs))
	}
	if d.DebugLevel < 0 || d.DebugLevel > 4 {
		err = multierr.Append(err, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", d.DebugLevel))
	}
	if d.WebPort < 0 || d.WebPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("defaults.web_port must be between 0 and 65535, got %d", d.WebPort))
	}
	return err
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be > 0, got %v", name, v)
	}
	return nil
}

// bcmPin accepts 0 (not wired) or a Raspberry Pi header GPIO.
func bcmPin(name string, pin int) error {
	if pin < 0 || pin > 27 {
		return fmt.Errorf("%s must be a BCM pin 1-27 or 0, got %d", name, pin)
	}
	return nil
}

// Period returns the control cycle duration.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Defaults.PeriodMs) * time.Millisecond
}

// StaleAfter returns how long a vision frame stays valid.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Vision.StaleAfterMs) * time.Millisecond
}

// ElevatorConfig converts the elevator section into the controller calibration.
func (c *Config) ElevatorConfig() elevator.Config {
	e := c.Elevator
	return elevator.Config{
		MainGains:       e.Main.Gains.gains(),
		MainConstraints: control.Constraints{MaxVelocity: e.Main.MaxVelocity, MaxAcceleration: e.Main.MaxAcceleration},
		MainFeedforward: control.ElevatorFeedforward{KS: e.Main.KS, KG: e.Main.KG, KV: e.Main.KV},
		MainTolerance:   e.Main.Tolerance,

		InnerGains:     e.Inner.Gains.gains(),
		InnerTolerance: e.Inner.Tolerance,

		WinchMetersPerCount: e.WinchMetersPerCount,
		InnerMetersPerCount: e.InnerMetersPerCount,

		StartHeight:    e.StartHeightM,
		LowerSoftLimit: e.LowerSoftLimit,

		Period: c.Period(),
	}
}

// AssistConfig converts the vision_assist section into the command tuning.
func (c *Config) AssistConfig() assist.Config {
	a := c.VisionAssist
	return assist.Config{
		RotationGains:        a.Rotation.gains(),
		RotationTolerance:    a.RotationTolerance,
		TranslationGains:     a.Translation.gains(),
		TranslationTolerance: a.TranslationTolerance,
		AlsoDrive:            a.AlsoDrive,
		Period:               c.Period(),
	}
}

// StaticTargets converts the configured fixed detections.
func (c *Config) StaticTargets() []vision.Target {
	out := make([]vision.Target, len(c.Vision.StaticTargets))
	for i, t := range c.Vision.StaticTargets {
		out[i] = vision.Target{Yaw: t.Yaw, Pitch: t.Pitch, Area: t.Area}
	}
	return out
}
