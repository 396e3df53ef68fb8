package control

import "math"

// Constraints bound a trapezoidal profile, in units/s and units/s^2.
type Constraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
}

// ProfileState is a point on a motion profile.
type ProfileState struct {
	Position float64
	Velocity float64
}

func (s ProfileState) scaled(k float64) ProfileState {
	return ProfileState{Position: s.Position * k, Velocity: s.Velocity * k}
}

// TrapezoidProfile plans velocity-limited, acceleration-limited motion
// between two states: accelerate, cruise, decelerate.
type TrapezoidProfile struct {
	constraints Constraints
}

func NewTrapezoidProfile(c Constraints) *TrapezoidProfile {
	return &TrapezoidProfile{constraints: c}
}

// Calculate returns the state t seconds after current on the way to goal.
//
// The profile is recomputed from current each call, so feeding back the
// previous output every cycle walks the trapezoid.
func (p *TrapezoidProfile) Calculate(t float64, current, goal ProfileState) ProfileState {
	// Plan in the positive direction and flip the result back.
	dir := 1.0
	if current.Position > goal.Position {
		dir = -1
	}
	cur := current.scaled(dir)
	goal = goal.scaled(dir)

	maxV := p.constraints.MaxVelocity
	maxA := p.constraints.MaxAcceleration
	if cur.Velocity > maxV {
		cur.Velocity = maxV
	}

	// Distances covered if the profile had started (or ended) at rest.
	cutoffBegin := cur.Velocity / maxA
	cutoffDistBegin := cutoffBegin * cutoffBegin * maxA / 2
	cutoffEnd := goal.Velocity / maxA
	cutoffDistEnd := cutoffEnd * cutoffEnd * maxA / 2

	fullTrapezoidDist := cutoffDistBegin + (goal.Position - cur.Position) + cutoffDistEnd
	accelTime := maxV / maxA
	fullSpeedDist := fullTrapezoidDist - accelTime*accelTime*maxA

	// Too short to reach cruise speed: triangle profile.
	if fullSpeedDist < 0 {
		accelTime = math.Sqrt(fullTrapezoidDist / maxA)
		fullSpeedDist = 0
	}

	endAccel := accelTime - cutoffBegin
	endFullSpeed := endAccel + fullSpeedDist/maxV
	endDecel := endFullSpeed + accelTime - cutoffEnd

	out := cur
	switch {
	case t < endAccel:
		out.Velocity += t * maxA
		out.Position += (cur.Velocity + t*maxA/2) * t
	case t < endFullSpeed:
		out.Velocity = maxV
		out.Position += (cur.Velocity+endAccel*maxA/2)*endAccel + maxV*(t-endAccel)
	case t <= endDecel:
		left := endDecel - t
		out.Velocity = goal.Velocity + left*maxA
		out.Position = goal.Position - (goal.Velocity+left*maxA/2)*left
	default:
		out = goal
	}
	return out.scaled(dir)
}
