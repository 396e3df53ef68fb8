// Package control provides the closed-loop building blocks shared by the
// elevator and the drive-assist command: a fixed-period PID with a tolerance
// band, a trapezoidal motion profile, a profiled PID and elevator feedforward.
package control

import (
	"math"
	"time"

	"go.einride.tech/pid"
)

// DefaultPeriod is the control cycle used when none is given.
const DefaultPeriod = 20 * time.Millisecond

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	P float64
	I float64
	D float64
}

// State is a copy of a PID's accumulators after the last update.
type State struct {
	Error      float64
	Integral   float64
	Derivative float64
	Output     float64
}

// PID is a position controller sampled once per control cycle.
// Error is setpoint minus measurement.
type PID struct {
	ctrl      pid.Controller
	period    time.Duration
	setpoint  float64
	tolerance float64
	measured  bool
}

// NewPID creates a controller with the given gains, sampled every period.
func NewPID(g Gains, period time.Duration) *PID {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &PID{
		ctrl: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: g.P,
				IntegralGain:     g.I,
				DerivativeGain:   g.D,
			},
		},
		period:    period,
		tolerance: 0.05,
	}
}

// SetSetpoint changes the reference without touching the accumulators.
func (c *PID) SetSetpoint(setpoint float64) { c.setpoint = setpoint }

func (c *PID) Setpoint() float64 { return c.setpoint }

// SetTolerance sets the error band inside which AtSetpoint reports true.
func (c *PID) SetTolerance(tolerance float64) { c.tolerance = tolerance }

// Calculate advances the controller one period and returns its output.
func (c *PID) Calculate(measurement float64) float64 {
	c.ctrl.Update(pid.ControllerInput{
		ReferenceSignal:  c.setpoint,
		ActualSignal:     measurement,
		SamplingInterval: c.period,
	})
	c.measured = true
	return c.ctrl.State.ControlSignal
}

// AtSetpoint reports whether the last error was inside the tolerance band.
// It is false until the first Calculate.
func (c *PID) AtSetpoint() bool {
	return c.measured && math.Abs(c.ctrl.State.ControlError) < c.tolerance
}

// PositionError returns the error of the last update.
func (c *PID) PositionError() float64 { return c.ctrl.State.ControlError }

// State returns the accumulators of the last update.
func (c *PID) State() State {
	s := c.ctrl.State
	return State{
		Error:      s.ControlError,
		Integral:   s.ControlErrorIntegral,
		Derivative: s.ControlErrorDerivative,
		Output:     s.ControlSignal,
	}
}

// Reset clears the integrator and the previous error.
func (c *PID) Reset() {
	c.ctrl.State = pid.ControllerState{}
	c.measured = false
}

// Period returns the sampling period.
func (c *PID) Period() time.Duration { return c.period }
