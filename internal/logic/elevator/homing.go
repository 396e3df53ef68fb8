package elevator

import "github.com/cjeanneret/LiftGo/internal/debug"

// Homing drives the winch open-loop toward the lower limit switch and
// re-zeroes the encoders once it is pressed.
type Homing struct {
	elevator *Controller
	power    float64
}

// NewHoming creates a homing command. The sign of power must move the
// winch toward the lower switch.
func NewHoming(e *Controller, power float64) *Homing {
	return &Homing{elevator: e, power: power}
}

func (h *Homing) Name() string { return "Homing" }

func (h *Homing) Initialize() {
	debug.Command(h.Name(), "initialize")
	if h.elevator.lower == nil {
		debug.Info("Homing: no lower limit switch wired, nothing to do")
	}
}

func (h *Homing) Execute() {
	if h.elevator.AtLowerLimit() {
		return
	}
	h.elevator.DriveRaw(h.power)
}

// IsFinished is true at the lower switch, or at once when none is wired.
func (h *Homing) IsFinished() bool {
	return h.elevator.lower == nil || h.elevator.AtLowerLimit()
}

func (h *Homing) End(interrupted bool) {
	debug.Command(h.Name(), debug.Fmt("end interrupted=%v", interrupted))
	h.elevator.DriveRaw(0)
	if !interrupted && h.elevator.AtLowerLimit() {
		h.elevator.ResetEncoders()
	}
}
