package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/cjeanneret/LiftGo/internal/config"
	"github.com/cjeanneret/LiftGo/internal/debug"
	"github.com/cjeanneret/LiftGo/internal/hw/drive"
	"github.com/cjeanneret/LiftGo/internal/hw/gpio"
	"github.com/cjeanneret/LiftGo/internal/hw/motor"
	"github.com/cjeanneret/LiftGo/internal/hw/vision"
	"github.com/cjeanneret/LiftGo/internal/logic/assist"
	"github.com/cjeanneret/LiftGo/internal/logic/cycle"
	"github.com/cjeanneret/LiftGo/internal/logic/elevator"
	"github.com/cjeanneret/LiftGo/internal/telemetry"
	"github.com/cjeanneret/LiftGo/internal/web"
)

// robot wires the subsystems and commands into one control loop.
type robot struct {
	table     *telemetry.Table
	elevator  *elevator.Controller
	homing    *elevator.Homing
	assist    *assist.Assist
	drive     *drive.SimDrive
	scheduler *cycle.Scheduler
	plant     *simPlant
	closers   []io.Closer
}

// simPlant moves the simulated motors once per cycle and, on mock GPIO,
// presses the lower switch when the lift is back at its start height.
type simPlant struct {
	main, follower, inner *motor.SimMotor

	mock         *gpio.MockDriver // nil on real GPIO
	lowerPin     int
	normallyOpen bool
	bottomCounts float64
}

func (p *simPlant) Periodic() {
	p.main.Periodic()
	p.follower.Periodic()
	p.inner.Periodic()

	if p.mock == nil || p.lowerPin <= 0 {
		return
	}
	// Counts fall as the lift rises, so the bottom is the largest reading.
	pressed := p.main.Position() >= p.bottomCounts
	p.mock.SetInput(p.lowerPin, gpio.Level(pressed != p.normallyOpen))
}

// newRobot builds the robot from configuration. source may be nil, in
// which case the configured static targets are used.
func newRobot(cfg *config.Config, g gpio.Driver, source vision.Source) (*robot, error) {
	ec := cfg.ElevatorConfig()

	debug.Step(2, "Initializing motors")
	main := motor.NewSimMotor("winch_1", cfg.Simulation.WinchCountsPerCycle)
	follower := motor.NewSimMotor("winch_2", cfg.Simulation.WinchCountsPerCycle)
	follower.Inverted = true
	inner := motor.NewSimMotor("centerstage", cfg.Simulation.InnerCountsPerCycle)

	debug.Step(3, "Initializing limit switches")
	hw := elevator.Hardware{Main: main, Follower: follower, Inner: inner}
	ls := cfg.LimitSwitches
	if ls.LowerPin > 0 {
		sw, err := motor.NewLimitSwitch(g, ls.LowerPin, ls.NormallyOpen)
		if err != nil {
			return nil, fmt.Errorf("lower limit switch: %w", err)
		}
		hw.Lower = sw
		debug.Value("Lower limit pin", ls.LowerPin)
	}
	if ls.UpperPin > 0 {
		sw, err := motor.NewLimitSwitch(g, ls.UpperPin, ls.NormallyOpen)
		if err != nil {
			return nil, fmt.Errorf("upper limit switch: %w", err)
		}
		hw.Upper = sw
		debug.Value("Upper limit pin", ls.UpperPin)
	}

	plant := &simPlant{
		main:         main,
		follower:     follower,
		inner:        inner,
		lowerPin:     ls.LowerPin,
		normallyOpen: ls.NormallyOpen,
		bottomCounts: ec.StartCounts(),
	}
	if m, ok := g.(*gpio.MockDriver); ok {
		plant.mock = m
	}

	table := telemetry.NewTable()

	debug.Step(4, "Creating elevator")
	elev := elevator.New(ec, hw, table)

	debug.Step(5, "Creating vision drive assist")
	if source == nil {
		source = &vision.StaticSource{Targets: cfg.StaticTargets()}
	}
	dt := drive.NewSimDrive(true)
	va := assist.New(cfg.AssistConfig(), dt, source, table)

	sched := cycle.NewScheduler()
	sched.Register(elev, plant)

	closers := []io.Closer{g}
	if c, ok := source.(io.Closer); ok {
		closers = append(closers, c)
	}

	return &robot{
		table:     table,
		elevator:  elev,
		homing:    elevator.NewHoming(elev, cfg.Elevator.HomingPower),
		assist:    va,
		drive:     dt,
		scheduler: sched,
		plant:     plant,
		closers:   closers,
	}, nil
}

// openVision returns the UDP feed when one is configured, nil otherwise.
func openVision(ctx context.Context, cfg *config.Config) (vision.Source, error) {
	if cfg.Vision.UDPAddr == "" {
		return nil, nil
	}
	src, err := vision.ListenUDP(ctx, vision.UDPConfig{
		Addr:       cfg.Vision.UDPAddr,
		StaleAfter: cfg.StaleAfter(),
	})
	if err != nil {
		return nil, err
	}
	debug.Value("Vision UDP", src.Addr())
	return src, nil
}

// handleElevator applies a console request. It runs on the loop goroutine.
func (r *robot) handleElevator(req web.ElevatorRequest) {
	if req.Action != web.ActionHome {
		r.scheduler.Cancel(r.homing)
	}
	switch req.Action {
	case web.ActionSet:
		if req.Height != nil {
			r.elevator.SetHeight(*req.Height)
		}
		if req.InnerHeight != nil {
			r.elevator.SetInnerStageHeight(*req.InnerHeight)
		}
	case web.ActionNudge:
		if req.Delta != 0 {
			r.elevator.Nudge(req.Delta)
		}
		if req.InnerDelta != 0 {
			r.elevator.NudgeInnerStage(req.InnerDelta)
		}
	case web.ActionStop:
		r.elevator.Stop()
	case web.ActionLock:
		r.elevator.LockPosition()
	case web.ActionHome:
		r.scheduler.Schedule(r.homing)
	case web.ActionReset:
		r.elevator.ResetEncoders()
	}
}

// handleAssist applies a console request. It runs on the loop goroutine.
func (r *robot) handleAssist(req web.AssistRequest) {
	switch req.Action {
	case web.ActionStart:
		if !r.scheduler.Schedule(r.assist) {
			debug.Info("VisionDriveAssist already running")
		}
	case web.ActionStop:
		r.scheduler.Cancel(r.assist)
	}
}

// postElevator hands a request to the loop without blocking.
func (r *robot) postElevator(req web.ElevatorRequest) error {
	if err := r.scheduler.Post(func() { r.handleElevator(req) }); err != nil {
		return fmt.Errorf("%w: %v", web.ErrUnavailable, err)
	}
	return nil
}

// postAssist hands a request to the loop without blocking.
func (r *robot) postAssist(req web.AssistRequest) error {
	if err := r.scheduler.Post(func() { r.handleAssist(req) }); err != nil {
		return fmt.Errorf("%w: %v", web.ErrUnavailable, err)
	}
	return nil
}

// consoleConfig returns what the web console needs to know.
func (r *robot) consoleConfig(cfg *config.Config) web.ConsoleConfig {
	return web.ConsoleConfig{
		StartHeightM: cfg.Elevator.StartHeightM,
		MaxHeightM:   cfg.Elevator.LowerSoftLimit * cfg.Elevator.WinchMetersPerCount,
		PeriodMs:     cfg.Defaults.PeriodMs,
		AlsoDrive:    cfg.VisionAssist.AlsoDrive,
	}
}

// Close stops the motors and releases the hardware.
func (r *robot) Close() error {
	r.elevator.DriveRaw(0)
	r.plant.inner.SetPower(0)

	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
