package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/LiftGo/internal/telemetry"
)

// Elevator actions accepted by POST /elevator.
const (
	ActionSet   = "set"
	ActionNudge = "nudge"
	ActionStop  = "stop"
	ActionLock  = "lock"
	ActionHome  = "home"
	ActionReset = "reset"
)

// Assist actions accepted by POST /assist.
const (
	ActionStart = "start"
	// ActionStop is shared with the elevator.
)

// ErrUnavailable is returned by a control function when the loop cannot take
// the request right now.
var ErrUnavailable = errors.New("control loop unavailable")

// ElevatorRequest is the body of POST /elevator. Heights are in meters,
// deltas in encoder counts; a negative delta raises the lift.
type ElevatorRequest struct {
	Action      string   `json:"action"`
	Height      *float64 `json:"height,omitempty"`
	InnerHeight *float64 `json:"inner_height,omitempty"`
	Delta       float64  `json:"delta,omitempty"`
	InnerDelta  float64  `json:"inner_delta,omitempty"`
}

// AssistRequest is the body of POST /assist.
type AssistRequest struct {
	Action string `json:"action"`
}

// ElevatorFunc hands a validated request to the control loop.
// It must not block.
type ElevatorFunc func(ElevatorRequest) error

// AssistFunc hands a validated request to the control loop.
// It must not block.
type AssistFunc func(AssistRequest) error

// ConsoleConfig holds the values the console page needs (from config).
type ConsoleConfig struct {
	StartHeightM float64 `json:"start_height_m"`
	MaxHeightM   float64 `json:"max_height_m"` // 0 = unbounded
	PeriodMs     int     `json:"period_ms"`
	AlsoDrive    bool    `json:"also_drive"`
}

// MaxRequestBytes bounds POST bodies.
const MaxRequestBytes = 4 << 10

// TelemetryInterval is the push period of GET /telemetry/ws.
var TelemetryInterval = 100 * time.Millisecond

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Telemetry   *telemetry.Table
	Elevator    ElevatorFunc
	Assist      AssistFunc
	Console     ConsoleConfig
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// A nil elevator or assist func makes its route return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, table *telemetry.Table, elevator ElevatorFunc, assist AssistFunc, console ConsoleConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Telemetry:   table,
		Elevator:    elevator,
		Assist:      assist,
		Console:     console,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateElevatorRequest checks the action and its arguments. maxHeight
// bounds set heights when > 0.
func ValidateElevatorRequest(req ElevatorRequest, maxHeight float64) error {
	checkHeight := func(name string, h *float64) error {
		if h == nil {
			return nil
		}
		if !finite(*h) || *h < 0 {
			return fmt.Errorf("%s must be a finite height >= 0", name)
		}
		if maxHeight > 0 && *h > maxHeight {
			return fmt.Errorf("%s must be <= %.3f m", name, maxHeight)
		}
		return nil
	}

	switch req.Action {
	case ActionSet:
		if req.Height == nil && req.InnerHeight == nil {
			return errors.New("set needs height or inner_height")
		}
		if err := checkHeight("height", req.Height); err != nil {
			return err
		}
		return checkHeight("inner_height", req.InnerHeight)
	case ActionNudge:
		if !finite(req.Delta) || !finite(req.InnerDelta) {
			return errors.New("nudge deltas must be finite")
		}
		if req.Delta == 0 && req.InnerDelta == 0 {
			return errors.New("nudge needs delta or inner_delta")
		}
		return nil
	case ActionStop, ActionLock, ActionHome, ActionReset:
		return nil
	default:
		return fmt.Errorf("unknown elevator action %q", req.Action)
	}
}

// ValidateAssistRequest checks the action.
func ValidateAssistRequest(req AssistRequest) error {
	switch req.Action {
	case ActionStart, ActionStop:
		return nil
	default:
		return fmt.Errorf("unknown assist action %q", req.Action)
	}
}

// HandleConfig returns the console settings (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Console)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleElevator handles POST /elevator.
func (h *Handlers) HandleElevator(w http.ResponseWriter, r *http.Request) {
	var req ElevatorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateElevatorRequest(req, h.Console.MaxHeightM); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Elevator == nil {
		http.Error(w, "elevator not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Elevator(req); err != nil {
		h.reject(w, "elevator "+req.Action, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "action": req.Action})
}

// HandleAssist handles POST /assist.
func (h *Handlers) HandleAssist(w http.ResponseWriter, r *http.Request) {
	var req AssistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateAssistRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Assist == nil {
		http.Error(w, "vision assist not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Assist(req); err != nil {
		h.reject(w, "assist "+req.Action, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "action": req.Action})
}

func (h *Handlers) reject(w http.ResponseWriter, what string, err error) {
	if h.Broadcaster != nil {
		h.Broadcaster.Broadcast("error", what+": "+err.Error())
	}
	status := http.StatusInternalServerError
	if errors.Is(err, ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// HandleTelemetry handles GET /telemetry with the latest published values.
func (h *Handlers) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	if h.Telemetry == nil {
		writeJSON(w, http.StatusOK, map[string]float64{})
		return
	}
	writeJSON(w, http.StatusOK, h.Telemetry.Snapshot())
}

// HandleTelemetryWS handles GET /telemetry/ws, pushing a snapshot every
// TelemetryInterval until the client goes away.
func (h *Handlers) HandleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	if h.Telemetry == nil {
		http.Error(w, "telemetry not configured", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: upgrading telemetry websocket: %v", err)
		return
	}
	defer ws.Close()

	// Reading is required to process close and ping frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(TelemetryInterval)
	defer ticker.Stop()

	for {
		if err := ws.WriteJSON(h.Telemetry.Snapshot()); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
