package motor

// SimMotor stands in for a real motor controller during development.
// Each Periodic call advances the encoder by power * CountsPerCycle.
type SimMotor struct {
	Name           string
	CountsPerCycle float64
	// Inverted makes the encoder count in the direction opposite to the
	// commanded power, as a follower mounted facing the main motor does.
	Inverted bool

	power    float64
	position float64
	writes   int
	idle     IdleMode
}

// NewSimMotor creates a simulated motor at position 0.
func NewSimMotor(name string, countsPerCycle float64) *SimMotor {
	return &SimMotor{Name: name, CountsPerCycle: countsPerCycle}
}

func (m *SimMotor) SetPower(power float64) {
	m.power = Clamp(power)
	m.writes++
}

func (m *SimMotor) Power() float64 { return m.power }

func (m *SimMotor) Position() float64 { return m.position }

func (m *SimMotor) SetPosition(counts float64) { m.position = counts }

// SetIdleMode records the idle mode. The simulation integrates power only,
// so both modes stop the encoder at zero power.
func (m *SimMotor) SetIdleMode(mode IdleMode) { m.idle = mode }

func (m *SimMotor) IdleMode() IdleMode { return m.idle }

// Writes returns how many times SetPower has been called.
func (m *SimMotor) Writes() int { return m.writes }

// Periodic integrates one control cycle of motion.
func (m *SimMotor) Periodic() {
	delta := m.power * m.CountsPerCycle
	if m.Inverted {
		delta = -delta
	}
	m.position += delta
}
