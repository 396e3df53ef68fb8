package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingCommand records lifecycle calls in order.
type recordingCommand struct {
	name     string
	finishAt int // finish after this many Execute calls; 0 never finishes
	calls    []string
	executed int
}

func (c *recordingCommand) Name() string { return c.name }
func (c *recordingCommand) Initialize() { c.calls = append(c.calls, "init") }
func (c *recordingCommand) Execute() {
	c.executed++
	c.calls = append(c.calls, "exec")
}
func (c *recordingCommand) IsFinished() bool { return c.finishAt > 0 && c.executed >= c.finishAt }
func (c *recordingCommand) End(interrupted bool) {
	if interrupted {
		c.calls = append(c.calls, "end:interrupted")
	} else {
		c.calls = append(c.calls, "end")
	}
}

type orderLog struct{ entries []string }

type recordingSubsystem struct {
	name string
	log  *orderLog
}

func (s *recordingSubsystem) Periodic() { s.log.entries = append(s.log.entries, s.name) }

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------- RunOnce ----------

func TestRunOnce_SubsystemsInOrder(t *testing.T) {
	log := &orderLog{}
	s := NewScheduler()
	s.Register(&recordingSubsystem{"elevator", log}, &recordingSubsystem{"drive", log})

	s.RunOnce()
	s.RunOnce()

	want := []string{"elevator", "drive", "elevator", "drive"}
	if !equal(log.entries, want) {
		t.Errorf("periodic order = %v, want %v", log.entries, want)
	}
	if s.Cycles() != 2 {
		t.Errorf("Cycles() = %d, want 2", s.Cycles())
	}
}

func TestRunOnce_CommandFinishes(t *testing.T) {
	s := NewScheduler()
	cmd := &recordingCommand{name: "home", finishAt: 2}

	if !s.Schedule(cmd) {
		t.Fatal("Schedule returned false")
	}
	for i := 0; i < 4; i++ {
		s.RunOnce()
	}

	want := []string{"init", "exec", "exec", "end"}
	if !equal(cmd.calls, want) {
		t.Errorf("calls = %v, want %v", cmd.calls, want)
	}
	if s.IsScheduled(cmd) {
		t.Error("finished command still scheduled")
	}
}

func TestRunOnce_PostsRunBeforeSubsystems(t *testing.T) {
	log := &orderLog{}
	s := NewScheduler()
	s.Register(&recordingSubsystem{"elevator", log})

	if err := s.Post(func() { log.entries = append(log.entries, "post") }); err != nil {
		t.Fatal(err)
	}
	s.RunOnce()

	if !equal(log.entries, []string{"post", "elevator"}) {
		t.Errorf("order = %v", log.entries)
	}
}

func TestRunOnce_RepostWaitsForNextCycle(t *testing.T) {
	s := NewScheduler()
	count := 0
	var again func()
	again = func() {
		count++
		_ = s.Post(again)
	}
	_ = s.Post(again)

	s.RunOnce()
	if count != 1 {
		t.Fatalf("count after one cycle = %d, want 1", count)
	}
	s.RunOnce()
	if count != 2 {
		t.Errorf("count after two cycles = %d, want 2", count)
	}
}

// ---------- Schedule / Cancel ----------

func TestSchedule_TwiceIgnored(t *testing.T) {
	s := NewScheduler()
	cmd := &recordingCommand{name: "assist"}

	s.Schedule(cmd)
	if s.Schedule(cmd) {
		t.Error("second Schedule should return false")
	}
	if !equal(cmd.calls, []string{"init"}) {
		t.Errorf("calls = %v, want one init", cmd.calls)
	}
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	a := &recordingCommand{name: "a"}
	b := &recordingCommand{name: "b"}
	s.Schedule(a)
	s.Schedule(b)
	s.RunOnce()

	if !s.Cancel(a) {
		t.Fatal("Cancel returned false")
	}
	if s.Cancel(a) {
		t.Error("second Cancel should return false")
	}
	if !equal(s.Scheduled(), []string{"b"}) {
		t.Errorf("Scheduled() = %v, want [b]", s.Scheduled())
	}
	if last := a.calls[len(a.calls)-1]; last != "end:interrupted" {
		t.Errorf("last call = %q, want end:interrupted", last)
	}
}

func TestPost_QueueFull(t *testing.T) {
	s := NewScheduler()
	for i := 0; i < postQueueSize; i++ {
		if err := s.Post(func() {}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	if err := s.Post(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestPost_Concurrent(t *testing.T) {
	s := NewScheduler()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Post(func() {})
		}()
	}
	wg.Wait()
	s.RunOnce()
	if len(s.posts) != 0 {
		t.Errorf("%d posts left after drain", len(s.posts))
	}
}

// ---------- Run ----------

func TestRun_CycleLimit(t *testing.T) {
	s := NewScheduler()
	cmd := &recordingCommand{name: "assist"}
	s.Schedule(cmd)
	s.SetLimit(3)

	if err := s.Run(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Cycles() != 3 {
		t.Errorf("Cycles() = %d, want 3", s.Cycles())
	}
	if cmd.executed != 3 {
		t.Errorf("executed = %d, want 3", cmd.executed)
	}
	if last := cmd.calls[len(cmd.calls)-1]; last != "end:interrupted" {
		t.Errorf("last call = %q, want end:interrupted", last)
	}
}

func TestRun_ContextCancelEndsCommands(t *testing.T) {
	s := NewScheduler()
	cmd := &recordingCommand{name: "assist"}
	s.Schedule(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if s.IsScheduled(cmd) {
		t.Error("command still scheduled after Run returned")
	}
	if last := cmd.calls[len(cmd.calls)-1]; last != "end:interrupted" {
		t.Errorf("last call = %q, want end:interrupted", last)
	}
}
