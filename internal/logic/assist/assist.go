// Package assist implements the vision-guided drive assist: while active it
// turns the robot to face the closest target and, optionally, drives toward it.
package assist

import (
	"errors"
	"math"
	"time"

	"github.com/cjeanneret/LiftGo/internal/debug"
	"github.com/cjeanneret/LiftGo/internal/hw/vision"
	"github.com/cjeanneret/LiftGo/internal/logic/control"
	"github.com/cjeanneret/LiftGo/internal/telemetry"
)

// ErrAlreadyActive is returned when the assist is activated twice without an
// End in between.
var ErrAlreadyActive = errors.New("vision assist already active")

// Drivetrain is the part of the drive base the assist needs.
type Drivetrain interface {
	FieldRelative() bool
	SetFieldRelative(fieldRelative bool)
	DriveRobotRelative(forward, strafe, angular float64)
}

// Config holds the assist tuning. Angles are in degrees.
type Config struct {
	RotationGains        control.Gains
	RotationTolerance    float64
	TranslationGains     control.Gains
	TranslationTolerance float64
	// AlsoDrive issues drive commands; when false the loops run for
	// telemetry only.
	AlsoDrive bool
	Period    time.Duration
}

// DefaultConfig returns the competition tuning.
func DefaultConfig() Config {
	return Config{
		RotationGains:        control.Gains{P: 0.01, I: 0.005},
		RotationTolerance:    1.5,
		TranslationGains:     control.Gains{P: 0.8},
		TranslationTolerance: 0.5,
		AlsoDrive:            true,
		Period:               control.DefaultPeriod,
	}
}

// Assist is the VisionDriveAssist command.
type Assist struct {
	cfg    Config
	drive  Drivetrain
	source vision.Source
	sink   telemetry.Sink

	rotation    *control.PID
	translation *control.PID

	active             bool
	savedFieldRelative bool
}

// New creates an idle assist.
func New(cfg Config, drive Drivetrain, source vision.Source, sink telemetry.Sink) *Assist {
	if sink == nil {
		sink = telemetry.Discard{}
	}
	a := &Assist{
		cfg:         cfg,
		drive:       drive,
		source:      source,
		sink:        sink,
		rotation:    control.NewPID(cfg.RotationGains, cfg.Period),
		translation: control.NewPID(cfg.TranslationGains, cfg.Period),
	}
	a.rotation.SetTolerance(cfg.RotationTolerance)
	a.translation.SetTolerance(cfg.TranslationTolerance)
	return a
}

func (a *Assist) Name() string { return "VisionDriveAssist" }

// Activate saves the drive orientation mode, switches to robot-relative
// driving and arms both loops from a cold start.
func (a *Assist) Activate() error {
	if a.active {
		return ErrAlreadyActive
	}
	a.savedFieldRelative = a.drive.FieldRelative()
	if a.savedFieldRelative {
		a.drive.SetFieldRelative(false)
	}
	a.rotation.SetSetpoint(0)
	a.translation.SetSetpoint(0)
	a.rotation.Reset()
	a.translation.Reset()
	a.active = true
	a.sink.PutBool("assist/active", true)
	debug.Command(a.Name(), debug.Fmt("activate saved_field_relative=%v", a.savedFieldRelative))
	return nil
}

// Initialize activates the assist. A second activation is logged and ignored.
func (a *Assist) Initialize() {
	if err := a.Activate(); err != nil {
		debug.Error(err)
	}
}

// Execute runs one cycle. Cycles without a visible target, or with a
// non-finite one, leave the loops and the drivetrain untouched.
func (a *Assist) Execute() {
	if !a.active {
		return
	}
	t, ok := a.source.ClosestTarget()
	if !ok || !finite(t.Yaw) || !finite(t.Pitch) {
		return
	}

	rot := a.rotation.Calculate(t.Yaw)
	fwd := a.translation.Calculate(t.Pitch)

	a.sink.PutNumber("vision/yaw", t.Yaw)
	a.sink.PutNumber("vision/pitch", t.Pitch)
	a.sink.PutNumber("vision/area", t.Area)
	a.sink.PutNumber("assist/rotation_output", rot)
	a.sink.PutNumber("assist/translation_output", fwd)
	a.sink.PutBool("assist/rotation_at_setpoint", a.rotation.AtSetpoint())
	a.sink.PutBool("assist/translation_at_setpoint", a.translation.AtSetpoint())

	if a.cfg.AlsoDrive {
		a.drive.DriveRobotRelative(-fwd, 0, rot)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFinished is always false; the assist runs until cancelled.
func (a *Assist) IsFinished() bool { return false }

// End restores the saved orientation mode. It is a no-op while idle.
func (a *Assist) End(interrupted bool) {
	if !a.active {
		return
	}
	a.drive.SetFieldRelative(a.savedFieldRelative)
	a.active = false
	a.sink.PutBool("assist/active", false)
	debug.Command(a.Name(), debug.Fmt("end interrupted=%v", interrupted))
}

func (a *Assist) Active() bool { return a.active }

// AtTarget reports both loops inside tolerance on the last update.
func (a *Assist) AtTarget() bool {
	return a.rotation.AtSetpoint() && a.translation.AtSetpoint()
}

// Rotation and Translation expose the loop states for inspection.
func (a *Assist) Rotation() control.State    { return a.rotation.State() }
func (a *Assist) Translation() control.State { return a.translation.State() }
