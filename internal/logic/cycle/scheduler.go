// Package cycle runs the robot's fixed-period control loop: registered
// subsystems first, then scheduled commands, once per cycle.
package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/cjeanneret/LiftGo/internal/debug"
)

// ErrQueueFull is returned by Post when the loop is not draining requests.
var ErrQueueFull = errors.New("cycle: post queue full")

const postQueueSize = 64

// Subsystem owns hardware and is updated every cycle.
type Subsystem interface {
	Periodic()
}

// Command is a unit of behavior run by the scheduler until it finishes or is
// cancelled.
type Command interface {
	Name() string
	Initialize()
	Execute()
	IsFinished() bool
	End(interrupted bool)
}

// Scheduler is not safe for concurrent use, except Post. Everything else must
// run on the loop goroutine, which is what Post is for.
type Scheduler struct {
	subsystems []Subsystem
	commands   []Command
	posts      chan func()
	cycles     uint64
	limit      uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{posts: make(chan func(), postQueueSize)}
}

// Register adds subsystems in the order their Periodic runs.
func (s *Scheduler) Register(subsystems ...Subsystem) {
	s.subsystems = append(s.subsystems, subsystems...)
}

// Schedule initializes cmd and runs it from the next cycle. Scheduling a
// command that is already running does nothing and returns false.
func (s *Scheduler) Schedule(cmd Command) bool {
	if s.IsScheduled(cmd) {
		return false
	}
	debug.Command(cmd.Name(), "scheduled")
	cmd.Initialize()
	s.commands = append(s.commands, cmd)
	return true
}

// Cancel ends cmd as interrupted. It returns false if cmd was not running.
func (s *Scheduler) Cancel(cmd Command) bool {
	for i, c := range s.commands {
		if c == cmd {
			s.commands = append(s.commands[:i], s.commands[i+1:]...)
			cmd.End(true)
			debug.Command(cmd.Name(), "cancelled")
			return true
		}
	}
	return false
}

// CancelAll ends every running command as interrupted.
func (s *Scheduler) CancelAll() {
	for len(s.commands) > 0 {
		s.Cancel(s.commands[0])
	}
}

func (s *Scheduler) IsScheduled(cmd Command) bool {
	for _, c := range s.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// Scheduled returns the names of the running commands.
func (s *Scheduler) Scheduled() []string {
	names := make([]string, len(s.commands))
	for i, c := range s.commands {
		names[i] = c.Name()
	}
	return names
}

// Post queues fn to run on the loop goroutine at the start of the next
// cycle. It is safe to call from any goroutine and never blocks.
func (s *Scheduler) Post(fn func()) error {
	select {
	case s.posts <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetLimit makes Run return after n cycles. Zero means no limit.
func (s *Scheduler) SetLimit(n uint64) { s.limit = n }

// Cycles returns how many cycles have run.
func (s *Scheduler) Cycles() uint64 { return s.cycles }

// RunOnce runs a single cycle.
func (s *Scheduler) RunOnce() {
	s.drain()
	for _, sub := range s.subsystems {
		sub.Periodic()
	}
	running := s.commands[:0]
	for _, cmd := range s.commands {
		cmd.Execute()
		if cmd.IsFinished() {
			cmd.End(false)
			debug.Command(cmd.Name(), "finished")
			continue
		}
		running = append(running, cmd)
	}
	// Clear the tail so finished commands can be collected.
	for i := len(running); i < len(s.commands); i++ {
		s.commands[i] = nil
	}
	s.commands = running
	s.cycles++
}

// Run executes a cycle every period until ctx is done or the cycle limit is
// reached. Commands still running on cancellation are ended as interrupted.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	debug.Info("Control loop: period %v, %d subsystem(s)", period, len(s.subsystems))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CancelAll()
			debug.Info("Control loop stopped after %d cycles", s.cycles)
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce()
			if s.limit > 0 && s.cycles >= s.limit {
				s.CancelAll()
				debug.Info("Control loop reached %d cycles", s.cycles)
				return nil
			}
		}
	}
}

// drain runs the requests queued before the cycle started. Requests posted
// while draining wait for the next cycle.
func (s *Scheduler) drain() {
	for n := len(s.posts); n > 0; n-- {
		(<-s.posts)()
	}
}
