package vision

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// ---------- Closest ----------

func TestClosest_PicksLargestArea(t *testing.T) {
	targets := []Target{
		{Yaw: -20, Pitch: 3, Area: 1.2},
		{Yaw: 10, Pitch: -15, Area: 4.5},
		{Yaw: 2, Pitch: 0, Area: 0.3},
	}
	got, ok := Closest(targets)
	if !ok {
		t.Fatal("expected a target")
	}
	if got.Yaw != 10 || got.Pitch != -15 {
		t.Errorf("Closest = %+v, want yaw=10 pitch=-15", got)
	}
}

func TestClosest_Empty(t *testing.T) {
	got, ok := Closest(nil)
	if ok {
		t.Error("expected ok=false for no detections")
	}
	if got != (Target{}) {
		t.Errorf("Closest(nil) = %+v, want zero", got)
	}
}

func TestClosest_TieKeepsFirst(t *testing.T) {
	got, _ := Closest([]Target{{Yaw: 1, Area: 2}, {Yaw: 2, Area: 2}})
	if got.Yaw != 1 {
		t.Errorf("tie picked yaw=%v, want first detection", got.Yaw)
	}
}

func TestStaticSource(t *testing.T) {
	s := &StaticSource{}
	if s.HasTarget() {
		t.Error("empty source reported a target")
	}
	s.Targets = []Target{{Yaw: 5, Area: 1}, {Yaw: 7, Area: 3}}
	if !s.HasTarget() {
		t.Error("expected target")
	}
	if got, ok := s.ClosestTarget(); !ok || got.Yaw != 7 {
		t.Errorf("ClosestTarget = %+v, %v", got, ok)
	}
}

// ---------- ParseFrame ----------

func TestParseFrame(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{"single", "10,-15,4.5", 1, false},
		{"multiple", "10,-15,4.5; -3,2,1.0", 2, false},
		{"empty", "", 0, false},
		{"whitespace", "  \n", 0, false},
		{"trailing_separator", "1,2,3;", 1, false},
		{"missing_field", "1,2", 0, true},
		{"not_a_number", "a,2,3", 0, true},
		{"NaN_yaw", "NaN,0,5", 0, true},
		{"Inf_pitch", "1,Inf,5", 0, true},
		{"negative_Inf_area", "1,2,-Inf", 0, true},
		{"NaN_in_second_detection", "1,2,3;4,nan,6", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("got %d detections, want %d", len(got), tc.want)
			}
		})
	}
}

func TestParseFrame_Values(t *testing.T) {
	got, err := ParseFrame([]byte("10.5,-15,4.5"))
	if err != nil {
		t.Fatal(err)
	}
	want := Target{Yaw: 10.5, Pitch: -15, Area: 4.5}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

// ---------- UDPSource ----------

func TestUDPSource_NoFrameNoTarget(t *testing.T) {
	s := NewUDPSource(0)
	if s.HasTarget() {
		t.Error("source without frames reported a target")
	}
}

func TestUDPSource_StaleFrameIgnored(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewUDPSource(250 * time.Millisecond)
	s.now = func() time.Time { return now }

	s.Update([]Target{{Yaw: 1, Area: 1}})
	if !s.HasTarget() {
		t.Fatal("fresh frame should have a target")
	}

	now = now.Add(300 * time.Millisecond)
	if s.HasTarget() {
		t.Error("stale frame should not report a target")
	}
}

func TestParseFrame_NonFiniteIsErrNonFinite(t *testing.T) {
	_, err := ParseFrame([]byte("NaN,-15,5"))
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
}

func TestUDPSource_ExpiresBetweenReads(t *testing.T) {
	// Each clock read advances 60ms; a frame lasts 100ms.
	now := time.Unix(100, 0)
	s := NewUDPSource(100 * time.Millisecond)
	s.now = func() time.Time {
		now = now.Add(60 * time.Millisecond)
		return now
	}
	s.Update([]Target{{Yaw: 4, Pitch: -2, Area: 1}})

	if got, ok := s.ClosestTarget(); !ok || got.Yaw != 4 {
		t.Fatalf("first read = %+v, %v; want fresh target", got, ok)
	}
	got, ok := s.ClosestTarget()
	if ok {
		t.Errorf("second read reported %+v after expiry", got)
	}
	if got != (Target{}) {
		t.Errorf("expired read = %+v, want zero Target", got)
	}
}

// scriptedReader replays a fixed sequence of datagrams and errors, then
// reports the socket closed.
type scriptedReader struct {
	steps []interface{} // string payload or error
	reads int
}

func (r *scriptedReader) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	r.reads++
	if len(r.steps) == 0 {
		return 0, nil, net.ErrClosed
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if err, ok := step.(error); ok {
		return 0, nil, err
	}
	return copy(b, step.(string)), nil, nil
}

func TestReadLoop_PacesReadErrors(t *testing.T) {
	s := NewUDPSource(0)
	r := &scriptedReader{steps: []interface{}{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		"NaN,0,5",
		"10,-15,4.5",
	}}

	start := time.Now()
	s.readLoop(r, 64, 10*time.Millisecond)

	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("loop took %v, want at least 3 retry pauses", elapsed)
	}
	if r.reads != 6 {
		t.Errorf("reads = %d, want 6", r.reads)
	}
	if s.Frames() != 1 {
		t.Errorf("frames = %d, want 1 (non-finite frame dropped)", s.Frames())
	}
	if got, ok := s.ClosestTarget(); !ok || got.Yaw != 10 {
		t.Errorf("ClosestTarget = %+v, %v", got, ok)
	}
}

func TestUDPSource_EmptyFrameClearsTargets(t *testing.T) {
	s := NewUDPSource(0)
	s.Update([]Target{{Yaw: 1, Area: 1}})
	s.Update(nil)
	if s.HasTarget() {
		t.Error("empty frame should clear targets")
	}
	if s.Frames() != 2 {
		t.Errorf("frames = %d, want 2", s.Frames())
	}
}

func TestListenUDP_ReceivesFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := ListenUDP(ctx, UDPConfig{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	conn, err := net.Dial("udp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("4,-2,0.5;10,-15,4.5")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !s.HasTarget() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for frame")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got, _ := s.ClosestTarget(); got.Yaw != 10 {
		t.Errorf("ClosestTarget = %+v, want yaw=10", got)
	}
}

func TestUDPSource_CloseTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := ListenUDP(ctx, UDPConfig{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := NewUDPSource(0).Close(); err != nil {
		t.Errorf("Close without listener: %v", err)
	}
}
