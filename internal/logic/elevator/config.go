package elevator

import (
	"time"

	"github.com/cjeanneret/LiftGo/internal/logic/control"
)

// Config is the elevator calibration. It is copied into the controller at
// construction and never changes afterwards.
type Config struct {
	// Main winch (profiled PID + feedforward), in encoder counts.
	MainGains       control.Gains
	MainConstraints control.Constraints
	MainFeedforward control.ElevatorFeedforward
	MainTolerance   float64

	// Inner stage (plain PID), in encoder counts.
	InnerGains     control.Gains
	InnerTolerance float64

	// Meters of travel per encoder count.
	WinchMetersPerCount float64
	InnerMetersPerCount float64

	StartHeight      float64 // main winch height in meters after ResetEncoders
	InnerStartCounts float64
	LowerSoftLimit   float64 // smallest main goal allowed, in counts

	Period time.Duration
}

// DefaultConfig returns the competition robot calibration.
func DefaultConfig() Config {
	return Config{
		MainGains:       control.Gains{P: 0.12},
		MainConstraints: control.Constraints{MaxVelocity: 200, MaxAcceleration: 1},
		MainFeedforward: control.ElevatorFeedforward{KS: 1.75, KG: 1.95},
		MainTolerance:   1.5,

		InnerGains:     control.Gains{P: 0.03},
		InnerTolerance: 1,

		WinchMetersPerCount: -0.0125,
		InnerMetersPerCount: -0.011,

		StartHeight:      0.11,
		InnerStartCounts: 0,
		LowerSoftLimit:   -59,

		Period: control.DefaultPeriod,
	}
}

// StartCounts is the main winch encoder reading at StartHeight.
func (c Config) StartCounts() float64 {
	return c.StartHeight / c.WinchMetersPerCount
}
