package vision

// Target is one detection reported by the vision pipeline for a single frame.
// Angles are in degrees with (0, 0) at the camera center.
type Target struct {
	Yaw   float64 // positive to the right
	Pitch float64 // positive up
	Area  float64 // percent of the image; larger means closer
}

// Source is the high-level interface used by commands that track targets,
// regardless of how the detections reach the robot.
type Source interface {
	// HasTarget reports whether the latest frame contains any detection.
	HasTarget() bool
	// ClosestTarget returns the detection with the largest area from the
	// same frame it checks for visibility. ok is false when nothing is
	// visible, and the Target is then the zero value.
	ClosestTarget() (t Target, ok bool)
}

// Closest returns the target with the largest area in a single pass.
// ok is false for an empty slice. Ties keep the first detection.
func Closest(targets []Target) (best Target, ok bool) {
	for i, t := range targets {
		if i == 0 || t.Area > best.Area {
			best = t
		}
	}
	return best, len(targets) > 0
}

// StaticSource is a Source over a fixed set of detections.
// It is useful for bench tests and simulation.
type StaticSource struct {
	Targets []Target
}

func (s *StaticSource) HasTarget() bool {
	return len(s.Targets) > 0
}

func (s *StaticSource) ClosestTarget() (Target, bool) {
	return Closest(s.Targets)
}
