// Package printer provides an in-process printer oracle. It models heater ramps and
// print jobs closely enough to drive the idle shutdown engine without a real host.
package printer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
)

// ----------- Simulation constants -----------
const (
	AmbientC        = 25.0  // ambient temperature °C
	MaxSafeC        = 300.0 // hotend overheat threshold °C
	RampUpCPerSec   = 3.0   // °C per second while below target
	RampDownCPerSec = 1.5   // °C per second while cooling
	PrintToolC      = 210.0 // tool target set when a print starts
	PrintBedC       = 60.0  // bed target set when a print starts

	DefaultJobDuration = 10 * time.Minute
)

// Heater names.
const (
	Tool0 = "tool0"
	Bed   = "bed"
)

// Host event names the simulator emits.
const (
	EventConnected    = "Connected"
	EventDisconnected = "Disconnected"
	EventPrintStarted = "PrintStarted"
	EventPrintDone    = "PrintDone"
	EventError        = "Error"
)

var (
	ErrNotOperational = errors.New("printer is not operational")
	ErrUnknownHeater  = errors.New("unknown heater")
)

// EventSink receives host lifecycle events raised by the simulator.
type EventSink func(event string, payload map[string]any)

// Simulator is a thread-safe simulated printer.
type Simulator struct {
	log *logger.Logger

	mu          sync.Mutex
	state       string
	file        string
	remaining   time.Duration
	jobDuration time.Duration
	heaters     map[string]*models.Temperature
	lastTick    time.Time
	sink        EventSink
}

func NewSimulator(log *logger.Logger) *Simulator {
	return &Simulator{
		log:         logger.OrNop(log).Named("printer"),
		state:       models.PrinterClosed,
		jobDuration: DefaultJobDuration,
		heaters: map[string]*models.Temperature{
			Tool0: {Actual: AmbientC},
			Bed:   {Actual: AmbientC},
		},
	}
}

// SetEventSink registers the receiver of simulated host events.
func (s *Simulator) SetEventSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// SetJobDuration changes how long subsequent prints take.
func (s *Simulator) SetJobDuration(d time.Duration) {
	s.mu.Lock()
	s.jobDuration = d
	s.mu.Unlock()
}

func (s *Simulator) IsPrinting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.PrinterPrinting
}

func (s *Simulator) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.PrinterPaused
}

func (s *Simulator) IsClosedOrError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.PrinterClosed || s.state == models.PrinterError
}

// Temperatures returns a copy of every heater reading.
func (s *Simulator) Temperatures() map[string]models.Temperature {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Temperature, len(s.heaters))
	for name, t := range s.heaters {
		out[name] = *t
	}
	return out
}

func (s *Simulator) SetTemperature(heater string, target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.heaters[heater]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHeater, heater)
	}
	if target < 0 {
		target = 0
	}
	h.Target = target
	s.log.Debugw("set_temperature", "heater", heater, "target", target)
	return nil
}

func (s *Simulator) Connect() error {
	s.mu.Lock()
	if s.state != models.PrinterClosed && s.state != models.PrinterError {
		s.mu.Unlock()
		return nil
	}
	s.state = models.PrinterOperational
	sink := s.sink
	s.mu.Unlock()

	s.log.Infow("printer_connected")
	emit(sink, EventConnected, nil)
	return nil
}

// Disconnect closes the connection. A running job is dropped and heaters are switched off.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	if s.state == models.PrinterClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = models.PrinterClosed
	s.file = ""
	s.remaining = 0
	for _, h := range s.heaters {
		h.Target = 0
	}
	sink := s.sink
	s.mu.Unlock()

	s.log.Infow("printer_disconnected")
	emit(sink, EventDisconnected, nil)
	return nil
}

// SelectFileAndPrint starts a job for path and heats tool and bed to print targets.
func (s *Simulator) SelectFileAndPrint(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("empty file path")
	}

	s.mu.Lock()
	if s.state != models.PrinterOperational {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotOperational, st)
	}
	s.state = models.PrinterPrinting
	s.file = path
	s.remaining = s.jobDuration
	s.heaters[Tool0].Target = PrintToolC
	s.heaters[Bed].Target = PrintBedC
	sink := s.sink
	s.mu.Unlock()

	s.log.Infow("print_started", "file", path)
	emit(sink, EventPrintStarted, map[string]any{"name": path, "path": path})
	return nil
}

// Pause and Resume toggle a running job.
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.PrinterPrinting {
		s.state = models.PrinterPaused
	}
}

func (s *Simulator) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.PrinterPaused {
		s.state = models.PrinterPrinting
	}
}

// Snapshot returns the current state for the status endpoint.
func (s *Simulator) Snapshot() models.PrinterSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	temps := make(map[string]models.Temperature, len(s.heaters))
	for name, t := range s.heaters {
		temps[name] = *t
	}
	return models.PrinterSnapshot{
		State:            s.state,
		File:             s.file,
		RemainingSeconds: int(s.remaining / time.Second),
		Temperatures:     temps,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.step(now)
		}
	}
}

// step advances the model to now and emits whatever events the step produced.
func (s *Simulator) step(now time.Time) {
	s.mu.Lock()
	if s.lastTick.IsZero() {
		s.lastTick = now
		s.mu.Unlock()
		return
	}
	elapsed := now.Sub(s.lastTick)
	s.lastTick = now

	var events []string
	names := make([]string, 0, len(s.heaters))
	for name := range s.heaters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rampHeater(s.heaters[name], elapsed.Seconds())
	}

	if s.heaters[Tool0].Actual > MaxSafeC && s.state != models.PrinterError {
		s.state = models.PrinterError
		s.file = ""
		s.remaining = 0
		events = append(events, EventError)
	}

	if s.state == models.PrinterPrinting {
		s.remaining -= elapsed
		if s.remaining <= 0 {
			s.remaining = 0
			s.state = models.PrinterOperational
			s.file = ""
			// end G-code of a typical slicer profile
			for _, h := range s.heaters {
				h.Target = 0
			}
			events = append(events, EventPrintDone)
		}
	}
	sink := s.sink
	s.mu.Unlock()

	for _, ev := range events {
		if ev == EventError {
			s.log.Errorw("printer_overheat", "max_safe", MaxSafeC)
			emit(sink, ev, map[string]any{"error": "Overheat detected"})
			continue
		}
		emit(sink, ev, nil)
	}
}

// rampHeater moves actual toward target, or toward ambient when the heater is off.
func rampHeater(h *models.Temperature, elapsed float64) {
	goal := h.Target
	if goal < AmbientC {
		goal = AmbientC
	}
	switch {
	case h.Actual < goal:
		h.Actual = minFloat(h.Actual+RampUpCPerSec*elapsed, goal)
	case h.Actual > goal:
		h.Actual = maxFloat(h.Actual-RampDownCPerSec*elapsed, goal)
	}
}

func emit(sink EventSink, event string, payload map[string]any) {
	if sink != nil {
		sink(event, payload)
	}
}

// helpers
func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}
