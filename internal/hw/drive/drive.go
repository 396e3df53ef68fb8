// Package drive holds a development stand-in for the swerve drivetrain.
package drive

import "github.com/cjeanneret/LiftGo/internal/debug"

// Command is a robot-relative velocity request.
type Command struct {
	Forward float64
	Strafe  float64
	Angular float64
}

// SimDrive records drive requests instead of moving modules.
type SimDrive struct {
	fieldRelative bool
	last          Command
	commands      int
}

// NewSimDrive creates a drivetrain starting in the given orientation mode.
func NewSimDrive(fieldRelative bool) *SimDrive {
	return &SimDrive{fieldRelative: fieldRelative}
}

func (d *SimDrive) FieldRelative() bool { return d.fieldRelative }

func (d *SimDrive) SetFieldRelative(fieldRelative bool) {
	if d.fieldRelative != fieldRelative {
		debug.Live("Drive: field relative %v -> %v", d.fieldRelative, fieldRelative)
	}
	d.fieldRelative = fieldRelative
}

func (d *SimDrive) DriveRobotRelative(forward, strafe, angular float64) {
	d.last = Command{Forward: forward, Strafe: strafe, Angular: angular}
	d.commands++
	debug.Trace("Drive: fwd=%+.3f strafe=%+.3f rot=%+.3f", forward, strafe, angular)
}

// Last returns the most recent drive request.
func (d *SimDrive) Last() Command { return d.last }

// Commands returns how many drive requests have been issued.
func (d *SimDrive) Commands() int { return d.commands }
