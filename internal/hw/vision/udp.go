package vision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LiftGo/internal/debug"
)

// ErrNonFinite is returned by ParseFrame for NaN or infinite values.
var ErrNonFinite = errors.New("non-finite value")

// readRetryDelay paces the reader after a socket error other than close.
const readRetryDelay = 50 * time.Millisecond

// UDPConfig controls the UDP listener receiving vision frames.
type UDPConfig struct {
	Addr       string        // listen address, host:port
	ReadBuffer int           // datagram buffer size; 0 = 2048
	StaleAfter time.Duration // frames older than this are ignored; 0 = never stale
}

// UDPSource receives one datagram per camera frame from the coprocessor.
//
// Payload: detections separated by ';', each "yaw,pitch,area".
// An empty payload is a frame without detections.
type UDPSource struct {
	staleAfter time.Duration
	now        func() time.Time
	conn       *net.UDPConn

	mu       sync.RWMutex
	targets  []Target
	received time.Time
	frames   uint64
}

// NewUDPSource creates a source that is only fed through Update.
func NewUDPSource(staleAfter time.Duration) *UDPSource {
	return &UDPSource{staleAfter: staleAfter, now: time.Now}
}

// ListenUDP starts a goroutine that reads frames until ctx is cancelled.
func ListenUDP(ctx context.Context, cfg UDPConfig) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve vision addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen vision udp: %w", err)
	}

	s := NewUDPSource(cfg.StaleAfter)
	s.conn = conn

	bufSize := cfg.ReadBuffer
	if bufSize <= 0 {
		bufSize = 2048
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go s.readLoop(conn, bufSize, readRetryDelay)

	debug.Info("Vision frames listening on %s", conn.LocalAddr())
	return s, nil
}

// datagramReader is the receiving side of a UDP socket.
type datagramReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// readLoop stores every parsable frame until the socket is closed. Other read
// errors are logged and followed by a pause of retry.
func (s *UDPSource) readLoop(r datagramReader, bufSize int, retry time.Duration) {
	buf := make([]byte, bufSize)
	for {
		n, _, err := r.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			debug.Trace("vision: read failed: %v", err)
			time.Sleep(retry)
			continue
		}
		targets, err := ParseFrame(buf[:n])
		if err != nil {
			debug.Trace("vision: dropping frame: %v", err)
			continue
		}
		s.Update(targets)
	}
}

// Addr returns the bound listen address, or nil when not listening.
func (s *UDPSource) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops the listener. Closing an already stopped source is not an error.
func (s *UDPSource) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Update stores the detections of the latest frame.
func (s *UDPSource) Update(targets []Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets[:0], targets...)
	s.received = s.now()
	s.frames++
}

// Frames returns how many frames have been received.
func (s *UDPSource) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

func (s *UDPSource) HasTarget() bool {
	_, ok := s.closest()
	return ok
}

func (s *UDPSource) ClosestTarget() (Target, bool) {
	return s.closest()
}

func (s *UDPSource) closest() (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frames == 0 {
		return Target{}, false
	}
	if s.staleAfter > 0 && s.now().Sub(s.received) > s.staleAfter {
		return Target{}, false
	}
	return Closest(s.targets)
}

// ParseFrame parses a frame payload into its detections.
func ParseFrame(b []byte) ([]Target, error) {
	payload := strings.TrimSpace(string(b))
	if payload == "" {
		return nil, nil
	}

	parts := strings.Split(payload, ";")
	targets := make([]Target, 0, len(parts))
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("detection %d: expected 3 fields, got %d", i, len(fields))
		}
		var vals [3]float64
		for j, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("detection %d field %d: %w", i, j, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("detection %d field %d: %w", i, j, ErrNonFinite)
			}
			vals[j] = v
		}
		targets = append(targets, Target{Yaw: vals[0], Pitch: vals[1], Area: vals[2]})
	}
	return targets, nil
}
