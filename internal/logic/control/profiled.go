package control

import "time"

// ProfiledPID is a PID whose setpoint walks a trapezoidal profile toward the
// goal instead of jumping to it.
type ProfiledPID struct {
	pid      *PID
	profile  *TrapezoidProfile
	period   time.Duration
	goal     ProfileState
	setpoint ProfileState
}

func NewProfiledPID(g Gains, c Constraints, period time.Duration) *ProfiledPID {
	p := NewPID(g, period)
	return &ProfiledPID{
		pid:     p,
		profile: NewTrapezoidProfile(c),
		period:  p.Period(),
	}
}

// SetGoal sets a goal position with zero final velocity.
func (c *ProfiledPID) SetGoal(position float64) {
	c.goal = ProfileState{Position: position}
}

func (c *ProfiledPID) Goal() ProfileState { return c.goal }

// Setpoint returns the current profile point (the PID reference).
func (c *ProfiledPID) Setpoint() ProfileState { return c.setpoint }

func (c *ProfiledPID) SetTolerance(tolerance float64) { c.pid.SetTolerance(tolerance) }

// Calculate advances the profile one period and runs the PID on it.
func (c *ProfiledPID) Calculate(measurement float64) float64 {
	c.setpoint = c.profile.Calculate(c.period.Seconds(), c.setpoint, c.goal)
	c.pid.SetSetpoint(c.setpoint.Position)
	return c.pid.Calculate(measurement)
}

// AtGoal reports that the profile has finished and the PID is in tolerance.
func (c *ProfiledPID) AtGoal() bool {
	return c.pid.AtSetpoint() && c.setpoint == c.goal
}

func (c *ProfiledPID) PositionError() float64 { return c.pid.PositionError() }

func (c *ProfiledPID) State() State { return c.pid.State() }

// Reset restarts the profile at rest from measured and clears the PID.
func (c *ProfiledPID) Reset(measured float64) {
	c.pid.Reset()
	c.setpoint = ProfileState{Position: measured}
}
