package assist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/LiftGo/internal/hw/drive"
	"github.com/cjeanneret/LiftGo/internal/hw/vision"
	"github.com/cjeanneret/LiftGo/internal/logic/control"
	"github.com/cjeanneret/LiftGo/internal/telemetry"
)

// recordingDrive records orientation changes on top of the sim drivetrain.
type recordingDrive struct {
	*drive.SimDrive
	modeSets []bool
}

func newRecordingDrive(fieldRelative bool) *recordingDrive {
	return &recordingDrive{SimDrive: drive.NewSimDrive(fieldRelative)}
}

func (d *recordingDrive) SetFieldRelative(fieldRelative bool) {
	d.modeSets = append(d.modeSets, fieldRelative)
	d.SimDrive.SetFieldRelative(fieldRelative)
}

// vanishingSource sees a target when asked HasTarget, but the frame is gone
// by the time the target itself is read.
type vanishingSource struct{ reads int }

func (s *vanishingSource) HasTarget() bool { return true }

func (s *vanishingSource) ClosestTarget() (vision.Target, bool) {
	s.reads++
	return vision.Target{}, false
}

var scenario = vision.Target{Yaw: 10, Pitch: -15, Area: 3}

// ---------- Lifecycle ----------

func TestActivate_SwitchesToRobotRelative(t *testing.T) {
	d := newRecordingDrive(true)
	a := New(DefaultConfig(), d, &vision.StaticSource{}, nil)

	require.NoError(t, a.Activate())
	assert.True(t, a.Active())
	assert.False(t, d.FieldRelative())

	a.End(false)
	assert.False(t, a.Active())
	assert.True(t, d.FieldRelative(), "field-relative mode restored")
}

func TestActivate_RobotRelativeLeftAlone(t *testing.T) {
	d := newRecordingDrive(false)
	a := New(DefaultConfig(), d, &vision.StaticSource{}, nil)

	require.NoError(t, a.Activate())
	a.End(true)

	assert.False(t, d.FieldRelative())
	assert.Equal(t, []bool{false}, d.modeSets, "only the restore touches the mode")
}

func TestActivate_TwiceRejected(t *testing.T) {
	d := newRecordingDrive(true)
	a := New(DefaultConfig(), d, &vision.StaticSource{}, nil)

	require.NoError(t, a.Activate())
	assert.ErrorIs(t, a.Activate(), ErrAlreadyActive)

	// The second attempt must not have saved robot-relative as the mode to restore.
	a.End(false)
	assert.True(t, d.FieldRelative())
}

func TestInitialize_TwiceKeepsSavedMode(t *testing.T) {
	d := newRecordingDrive(true)
	a := New(DefaultConfig(), d, &vision.StaticSource{}, nil)

	a.Initialize()
	a.Initialize()
	a.End(true)
	assert.True(t, d.FieldRelative())
}

func TestEnd_IdleIsNoop(t *testing.T) {
	d := newRecordingDrive(true)
	a := New(DefaultConfig(), d, &vision.StaticSource{}, nil)

	a.End(true)
	assert.Empty(t, d.modeSets)
}

func TestModeRestoredOverManyActivations(t *testing.T) {
	for _, start := range []bool{true, false} {
		d := newRecordingDrive(start)
		src := &vision.StaticSource{Targets: []vision.Target{scenario}}
		a := New(DefaultConfig(), d, src, nil)

		for i := 0; i < 10; i++ {
			require.NoError(t, a.Activate())
			for j := 0; j < 3; j++ {
				a.Execute()
			}
			assert.False(t, d.FieldRelative(), "robot-relative while active")
			a.End(i%2 == 0)
			require.Equal(t, start, d.FieldRelative(), "activation %d", i)
		}
	}
}

func TestIsFinished_AlwaysFalse(t *testing.T) {
	a := New(DefaultConfig(), newRecordingDrive(true), &vision.StaticSource{}, nil)
	assert.False(t, a.IsFinished())
	require.NoError(t, a.Activate())
	assert.False(t, a.IsFinished())
}

// ---------- Execute ----------

func TestExecute_Scenario(t *testing.T) {
	d := newRecordingDrive(true)
	tbl := telemetry.NewTable()
	src := &vision.StaticSource{Targets: []vision.Target{
		{Yaw: -30, Pitch: 4, Area: 0.5},
		scenario,
	}}
	a := New(DefaultConfig(), d, src, tbl)
	require.NoError(t, a.Activate())

	a.Execute()

	cmd := d.Last()
	assert.InDelta(t, -12.0, cmd.Forward, 1e-9)
	assert.Equal(t, 0.0, cmd.Strafe)
	assert.InDelta(t, -0.101, cmd.Angular, 1e-9)
	assert.False(t, a.AtTarget())

	yaw, ok := tbl.Number("vision/yaw")
	require.True(t, ok)
	assert.Equal(t, 10.0, yaw)
	out, _ := tbl.Number("assist/translation_output")
	assert.InDelta(t, 12.0, out, 1e-9)
}

func TestExecute_TargetLostBeforeReadSkips(t *testing.T) {
	d := newRecordingDrive(true)
	src := &vanishingSource{}
	a := New(DefaultConfig(), d, src, nil)
	require.NoError(t, a.Activate())

	a.Execute()

	assert.Equal(t, 1, src.reads)
	assert.Zero(t, d.Commands(), "no drive command for a vanished frame")
	assert.Equal(t, control.State{}, a.Rotation())
	assert.Equal(t, control.State{}, a.Translation())
}

func TestExecute_NonFiniteTargetSkips(t *testing.T) {
	d := newRecordingDrive(true)
	src := &vision.StaticSource{Targets: []vision.Target{{Yaw: math.NaN(), Pitch: -15, Area: 5}}}
	a := New(DefaultConfig(), d, src, nil)
	require.NoError(t, a.Activate())

	a.Execute()
	src.Targets = []vision.Target{{Yaw: 10, Pitch: math.Inf(-1), Area: 5}}
	a.Execute()
	assert.Zero(t, d.Commands())

	src.Targets = []vision.Target{scenario}
	a.Execute()
	assert.InDelta(t, -0.101, d.Last().Angular, 1e-9, "loops not poisoned")
	assert.InDelta(t, -12.0, d.Last().Forward, 1e-9)
}

func TestExecute_NoTargetSkipsIdempotently(t *testing.T) {
	d := newRecordingDrive(true)
	src := &vision.StaticSource{}
	a := New(DefaultConfig(), d, src, nil)
	require.NoError(t, a.Activate())

	for i := 0; i < 25; i++ {
		a.Execute()
	}
	assert.Zero(t, d.Commands(), "no drive command without a target")
	assert.Equal(t, control.State{}, a.Rotation())
	assert.Equal(t, control.State{}, a.Translation())

	// The first cycle with a target matches a controller that never skipped.
	src.Targets = []vision.Target{scenario}
	a.Execute()

	fresh := control.NewPID(DefaultConfig().RotationGains, DefaultConfig().Period)
	want := fresh.Calculate(scenario.Yaw)
	assert.InDelta(t, want, d.Last().Angular, 1e-12)
	assert.Equal(t, fresh.State(), a.Rotation())
}

func TestExecute_SkipBetweenTargetsKeepsState(t *testing.T) {
	src := &vision.StaticSource{Targets: []vision.Target{scenario}}
	a := New(DefaultConfig(), newRecordingDrive(false), src, nil)
	require.NoError(t, a.Activate())

	a.Execute()
	before := a.Rotation()

	src.Targets = nil
	for i := 0; i < 5; i++ {
		a.Execute()
	}
	assert.Equal(t, before, a.Rotation())
}

func TestExecute_AlsoDriveFalse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlsoDrive = false
	d := newRecordingDrive(true)
	tbl := telemetry.NewTable()
	a := New(cfg, d, &vision.StaticSource{Targets: []vision.Target{scenario}}, tbl)
	require.NoError(t, a.Activate())

	a.Execute()

	assert.Zero(t, d.Commands())
	out, ok := tbl.Number("assist/rotation_output")
	require.True(t, ok, "loops still run for telemetry")
	assert.InDelta(t, -0.101, out, 1e-9)
}

func TestExecute_IdleDoesNothing(t *testing.T) {
	d := newRecordingDrive(true)
	a := New(DefaultConfig(), d, &vision.StaticSource{Targets: []vision.Target{scenario}}, nil)

	a.Execute()
	assert.Zero(t, d.Commands())
}

func TestActivate_ColdStartsLoops(t *testing.T) {
	src := &vision.StaticSource{Targets: []vision.Target{scenario}}
	d := newRecordingDrive(false)
	a := New(DefaultConfig(), d, src, nil)

	require.NoError(t, a.Activate())
	a.Execute()
	a.Execute()
	a.End(false)

	require.NoError(t, a.Activate())
	a.Execute()
	assert.InDelta(t, -0.101, d.Last().Angular, 1e-9, "integral cleared on activation")
}

func TestAtTarget(t *testing.T) {
	src := &vision.StaticSource{Targets: []vision.Target{{Yaw: 0.5, Pitch: -0.2, Area: 1}}}
	a := New(DefaultConfig(), newRecordingDrive(false), src, nil)
	require.NoError(t, a.Activate())

	assert.False(t, a.AtTarget(), "no update yet")
	a.Execute()
	assert.True(t, a.AtTarget())
}
