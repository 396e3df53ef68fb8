package control

// ElevatorFeedforward estimates the motor power a lift needs at a velocity:
// static friction, gravity, and a velocity term.
type ElevatorFeedforward struct {
	KS float64 // static friction, applied in the direction of travel
	KG float64 // gravity, always applied
	KV float64 // per unit of velocity
}

// Calculate returns the open-loop power for velocity.
func (f ElevatorFeedforward) Calculate(velocity float64) float64 {
	return f.KS*sign(velocity) + f.KG + f.KV*velocity
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
