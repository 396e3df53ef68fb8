// Package motor abstracts the motor controllers and their integrated encoders.
//
// Vendor drivers (CAN motor controllers) live outside this module; anything
// satisfying Motor can be plugged in, including SimMotor for development.
package motor

import "math"

// IdleMode is what a motor controller does with its output at zero power.
type IdleMode int

const (
	// Coast lets the output spin freely.
	Coast IdleMode = iota
	// Brake shorts the windings so the output resists back-driving.
	Brake
)

func (m IdleMode) String() string {
	if m == Brake {
		return "brake"
	}
	return "coast"
}

// Motor is a single motor controller with an integrated relative encoder.
type Motor interface {
	// SetPower commands a duty cycle in [-1, 1].
	SetPower(power float64)
	// Power returns the last commanded duty cycle.
	Power() float64
	// Position returns the encoder position in counts.
	Position() float64
	// SetPosition overwrites the encoder position (reset or simulation).
	SetPosition(counts float64)
	// SetIdleMode selects the behavior at zero power. The controller
	// applies it; this layer never emulates braking.
	SetIdleMode(mode IdleMode)
}

// Clamp limits power to the valid motor range [-1, 1].
// NaN is treated as 0 so a broken computation never reaches the hardware.
func Clamp(power float64) float64 {
	if math.IsNaN(power) {
		return 0
	}
	return math.Max(-1, math.Min(1, power))
}

// Coupled drives two motors mechanically linked on one shaft.
//
// The follower always receives the negated command of the main motor.
// Driving them independently would fight the coupler and break it, so the
// follower has no write path of its own.
type Coupled struct {
	main     Motor
	follower Motor
}

// NewCoupled pairs main with its mirrored follower.
func NewCoupled(main, follower Motor) *Coupled {
	return &Coupled{main: main, follower: follower}
}

// SetPower clamps power and commands both motors in the same call.
func (c *Coupled) SetPower(power float64) {
	power = Clamp(power)
	c.main.SetPower(power)
	c.follower.SetPower(-power)
}

// Power returns the main motor's commanded power.
func (c *Coupled) Power() float64 {
	return c.main.Power()
}

// Position returns the main encoder position in counts.
func (c *Coupled) Position() float64 {
	return c.main.Position()
}

// FollowerPosition returns the follower encoder position in counts.
func (c *Coupled) FollowerPosition() float64 {
	return c.follower.Position()
}

// SetIdleMode applies the same idle mode to both motors.
func (c *Coupled) SetIdleMode(mode IdleMode) {
	c.main.SetIdleMode(mode)
	c.follower.SetIdleMode(mode)
}

// ResetPosition sets both encoders to counts.
func (c *Coupled) ResetPosition(counts float64) {
	c.main.SetPosition(counts)
	c.follower.SetPosition(counts)
}
