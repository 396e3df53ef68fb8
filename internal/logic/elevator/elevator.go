// Package elevator positions the two-stage lift: a main winch driven by two
// motors on one shaft and an independent inner (carriage) stage.
package elevator

import (
	"fmt"
	"math"

	"github.com/cjeanneret/LiftGo/internal/debug"
	"github.com/cjeanneret/LiftGo/internal/hw/motor"
	"github.com/cjeanneret/LiftGo/internal/logic/control"
	"github.com/cjeanneret/LiftGo/internal/telemetry"
)

// MainControl is the main winch mode: Disabled, or Tracking a goal in counts.
type MainControl struct {
	tracking bool
	goal     float64
}

// Disabled leaves the winch motors uncommanded by the closed loop.
func Disabled() MainControl { return MainControl{} }

// Tracking drives the winch toward goal counts.
func Tracking(goal float64) MainControl { return MainControl{tracking: true, goal: goal} }

// Goal returns the goal in counts and whether the loop is tracking it.
func (m MainControl) Goal() (float64, bool) { return m.goal, m.tracking }

func (m MainControl) String() string {
	if !m.tracking {
		return "disabled"
	}
	return fmt.Sprintf("tracking(%.3f)", m.goal)
}

// Switch is a digital end-of-travel input.
type Switch interface {
	Pressed() bool
}

// Hardware groups the devices the elevator owns exclusively.
type Hardware struct {
	Main     motor.Motor
	Follower motor.Motor // mirrored; only ever driven through the coupled pair
	Inner    motor.Motor
	Lower    Switch // optional
	Upper    Switch // optional
}

// Controller is the elevator subsystem. Periodic must be called once per
// control cycle; all other methods only record intent.
type Controller struct {
	cfg   Config
	winch *motor.Coupled
	inner motor.Motor
	lower Switch
	upper Switch
	sink  telemetry.Sink

	mainPID  *control.ProfiledPID
	innerPID *control.PID

	main          MainControl
	innerSetpoint float64
}

// New builds the elevator and resets its encoders, which arms the main
// winch to hold the start position.
func New(cfg Config, hw Hardware, sink telemetry.Sink) *Controller {
	if sink == nil {
		sink = telemetry.Discard{}
	}
	c := &Controller{
		cfg:      cfg,
		winch:    motor.NewCoupled(hw.Main, hw.Follower),
		inner:    hw.Inner,
		lower:    hw.Lower,
		upper:    hw.Upper,
		sink:     sink,
		mainPID:  control.NewProfiledPID(cfg.MainGains, cfg.MainConstraints, cfg.Period),
		innerPID: control.NewPID(cfg.InnerGains, cfg.Period),
	}
	// The winch holds the load when unpowered; the inner stage may drift.
	c.winch.SetIdleMode(motor.Brake)
	c.inner.SetIdleMode(motor.Coast)
	c.mainPID.SetTolerance(cfg.MainTolerance)
	c.innerPID.SetTolerance(cfg.InnerTolerance)
	c.innerSetpoint = cfg.InnerStartCounts
	c.ResetEncoders()
	debug.PrintStruct("Elevator config", cfg)
	return c
}

// SetHeight sets a new main winch goal in meters.
func (c *Controller) SetHeight(height float64) {
	c.setMain(Tracking(c.winchCounts(height)))
}

// SetInnerStageHeight sets the inner stage setpoint in meters.
// A non-finite height is ignored.
func (c *Controller) SetInnerStageHeight(height float64) {
	counts := c.innerCounts(height)
	if !finite(counts) {
		debug.Info("Elevator: ignoring non-finite inner stage height %v", height)
		return
	}
	c.innerSetpoint = counts
	debug.Setpoint("inner stage", c.innerSetpoint)
}

// Nudge adds deltaCounts to the main goal (joystick control). Counts fall
// as the lift rises, so a negative delta raises it. A joystick axis that
// reads positive for "up" must be negated by the caller.
// A disabled winch stays disabled.
func (c *Controller) Nudge(deltaCounts float64) {
	goal, ok := c.main.Goal()
	if !ok {
		return
	}
	c.setMain(Tracking(goal + deltaCounts))
}

// NudgeInnerStage adds deltaCounts to the inner setpoint, unclamped.
// As for Nudge, a negative delta raises the stage.
func (c *Controller) NudgeInnerStage(deltaCounts float64) {
	if !finite(deltaCounts) {
		return
	}
	c.innerSetpoint += deltaCounts
}

// DriveRaw disables the closed loop and commands the winch pair directly.
func (c *Controller) DriveRaw(power float64) {
	c.setMain(Disabled())
	c.winch.SetPower(power)
}

// Stop disables the closed loop without commanding the motors. Once
// unpowered they follow their idle mode.
func (c *Controller) Stop() {
	c.setMain(Disabled())
}

// IsAtHeight reports whether the main winch is within tolerance of height.
func (c *Controller) IsAtHeight(height float64) bool {
	return math.Abs(c.winchCounts(height)-c.winch.Position()) < c.cfg.MainTolerance
}

// IsInnerStageAtHeight reports whether the inner stage is within tolerance of height.
func (c *Controller) IsInnerStageAtHeight(height float64) bool {
	return math.Abs(c.innerCounts(height)-c.inner.Position()) < c.cfg.InnerTolerance
}

// Height returns the measured main winch height in meters.
func (c *Controller) Height() float64 {
	return c.winch.Position() * c.cfg.WinchMetersPerCount
}

// InnerStageHeight returns the measured inner stage height in meters.
func (c *Controller) InnerStageHeight() float64 {
	return c.inner.Position() * c.cfg.InnerMetersPerCount
}

// ResetEncoders sets the encoders to their start positions and holds there.
func (c *Controller) ResetEncoders() {
	start := c.cfg.StartCounts()
	c.winch.ResetPosition(start)
	c.inner.SetPosition(c.cfg.InnerStartCounts)
	c.mainPID.Reset(start)
	c.innerPID.Reset()
	c.setMain(Tracking(start))
}

// LockPosition holds the main winch where it currently is.
func (c *Controller) LockPosition() {
	c.setMain(Tracking(c.winch.Position()))
}

// MainControl returns the current main winch mode.
func (c *Controller) MainControl() MainControl { return c.main }

// InnerStageSetpoint returns the inner stage setpoint in counts.
func (c *Controller) InnerStageSetpoint() float64 { return c.innerSetpoint }

// AtLowerLimit reports whether the lower limit switch is pressed.
func (c *Controller) AtLowerLimit() bool { return c.lower != nil && c.lower.Pressed() }

// AtUpperLimit reports whether the upper limit switch is pressed.
func (c *Controller) AtUpperLimit() bool { return c.upper != nil && c.upper.Pressed() }

// Periodic runs one control cycle.
func (c *Controller) Periodic() {
	c.publish()
	c.runMain()
	c.runInner()
}

func (c *Controller) runMain() {
	goal, ok := c.main.Goal()
	if !ok {
		return
	}
	c.sink.PutNumber("winch_setpoint", goal)
	c.mainPID.SetGoal(goal)

	pidOut := c.mainPID.Calculate(c.winch.Position())
	ff := c.cfg.MainFeedforward.Calculate(c.mainPID.Setpoint().Velocity)
	out := motor.Clamp(pidOut + ff)
	c.winch.SetPower(out)

	debug.Output("winch", ff, pidOut, out)
	c.sink.PutNumber("winch_nonclamped", pidOut)
	c.sink.PutNumber("winch_feedforward", ff)
	c.sink.PutNumber("winch_output", out)
}

func (c *Controller) runInner() {
	c.sink.PutNumber("centerstage_setpoint", c.innerSetpoint)
	c.innerPID.SetSetpoint(c.innerSetpoint)
	out := motor.Clamp(c.innerPID.Calculate(c.inner.Position()))
	c.inner.SetPower(out)
	c.sink.PutNumber("centerstage_output", out)
}

func (c *Controller) publish() {
	c.sink.PutNumber("winch_measured", c.winch.Position())
	c.sink.PutNumber("centerstage_measured", c.inner.Position())
	c.sink.PutNumber("elevator_height", c.Height())
	c.sink.PutNumber("carriage_height", c.InnerStageHeight())
	c.sink.PutNumber("winch_1_m", c.winch.Position()*c.cfg.WinchMetersPerCount)
	c.sink.PutNumber("winch_2_m", c.winch.FollowerPosition()*c.cfg.WinchMetersPerCount)
	c.sink.PutNumber("centerstage_m", c.InnerStageHeight())
	_, tracking := c.main.Goal()
	c.sink.PutBool("winch_enabled", tracking)
	c.sink.PutBool("elevator/lower_limit", c.AtLowerLimit())
	c.sink.PutBool("elevator/upper_limit", c.AtUpperLimit())
}

// setMain is the only writer of the main mode. Goals are clamped to the
// lower soft limit, and re-enabling restarts the profile from the measured
// position. A non-finite goal is ignored and the current mode kept.
func (c *Controller) setMain(m MainControl) {
	goal, tracking := m.Goal()
	if tracking && !finite(goal) {
		debug.Info("Elevator: ignoring non-finite winch goal %v (keeping %v)", goal, c.main)
		return
	}
	if tracking {
		goal = math.Max(goal, c.cfg.LowerSoftLimit)
		m = Tracking(goal)
		if _, wasTracking := c.main.Goal(); !wasTracking {
			c.mainPID.Reset(c.winch.Position())
		}
		debug.Setpoint("winch", goal)
	} else if _, wasTracking := c.main.Goal(); wasTracking {
		debug.Live("Winch closed loop disabled")
	}
	c.main = m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Controller) winchCounts(height float64) float64 {
	return height / c.cfg.WinchMetersPerCount
}

func (c *Controller) innerCounts(height float64) float64 {
	return height / c.cfg.InnerMetersPerCount
}
