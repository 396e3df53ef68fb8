package motor

import (
	"fmt"

	"github.com/cjeanneret/LiftGo/internal/debug"
	"github.com/cjeanneret/LiftGo/internal/hw/gpio"
)

// LimitSwitch is an end-of-travel switch read through a GPIO input.
type LimitSwitch struct {
	gpio         gpio.Driver
	pin          int // BCM pin. 0 = not wired.
	normallyOpen bool
}

// NewLimitSwitch configures pin as a pulled-up input.
// A normally-open switch shorts the pin to ground when pressed.
func NewLimitSwitch(g gpio.Driver, pin int, normallyOpen bool) (*LimitSwitch, error) {
	if pin > 0 {
		if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("setup limit switch pin %d: %w", pin, err)
		}
	}
	return &LimitSwitch{gpio: g, pin: pin, normallyOpen: normallyOpen}, nil
}

// Pressed reports whether the switch is currently actuated.
// Read errors and unwired switches report false.
func (l *LimitSwitch) Pressed() bool {
	if l == nil || l.pin <= 0 {
		return false
	}
	level, err := l.gpio.ReadPin(l.pin)
	if err != nil {
		debug.Error(err)
		return false
	}
	if l.normallyOpen {
		return level == gpio.Low
	}
	return level == gpio.High
}
