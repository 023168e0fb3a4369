package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/timer"
)

// IdleState is the phase of the idle shutdown engine.
type IdleState int

const (
	IdleDisabled IdleState = iota
	IdleArmed
	IdleCooldownWait
	IdleTimelapseWait
	IdleAbortCountdown
	IdleShutdownFired
)

func (s IdleState) String() string {
	switch s {
	case IdleDisabled:
		return "DISABLED"
	case IdleArmed:
		return "ARMED"
	case IdleCooldownWait:
		return "COOLDOWN_WAIT"
	case IdleTimelapseWait:
		return "TIMELAPSE_WAIT"
	case IdleAbortCountdown:
		return "ABORT_COUNTDOWN"
	case IdleShutdownFired:
		return "SHUTDOWN_FIRED"
	default:
		return "UNKNOWN"
	}
}

const (
	idleStatusType      = "timeout"
	defaultPollInterval = 5 * time.Second
	toolHeaterPrefix    = "tool"
)

// IdleOption tunes the engine's time base.
type IdleOption func(*IdleEngine)

// WithTimeUnits sets the length of the configured minute and second. Tests shrink
// them; production keeps the defaults.
func WithTimeUnits(minute, second time.Duration) IdleOption {
	return func(e *IdleEngine) {
		e.minute = minute
		e.second = second
	}
}

// WithPollInterval sets the heater and timelapse polling interval.
func WithPollInterval(d time.Duration) IdleOption {
	return func(e *IdleEngine) { e.poll = d }
}

// WithClock replaces the wall clock and the process start time used by the uptime guard.
func WithClock(now func() time.Time, startedAt time.Time) IdleOption {
	return func(e *IdleEngine) {
		e.now = now
		e.startedAt = startedAt
	}
}

// relaySwitch is the part of the controller the engine drives.
type relaySwitch interface {
	TurnOff(ctx context.Context, r models.Relay) error
	Record(ctx context.Context, typ string, r *models.Relay, description string, meta map[string]any)
}

// IdleEngine powers participating relays off after the printer has been idle for the
// configured time. One shutdown cycle (heater cooldown, timelapse wait and abort
// countdown) runs at a time on its own goroutine and is cancelled through its context.
type IdleEngine struct {
	reg      *registry.Registry
	relays   relaySwitch
	printer  Printer
	notifier Notifier
	log      *logger.Logger

	minute    time.Duration
	second    time.Duration
	poll      time.Duration
	now       func() time.Time
	startedAt time.Time

	deadline *timer.Timer

	mu               sync.Mutex
	state            IdleState
	cycle            uint64
	cancelCycle      context.CancelFunc
	countdown        *int
	waitingHeaters   bool
	waitingTimelapse bool
	timelapseActive  bool
	stopped          bool
	wg               sync.WaitGroup
}

func NewIdleEngine(reg *registry.Registry, relays relaySwitch, printer Printer, n Notifier, log *logger.Logger, opts ...IdleOption) *IdleEngine {
	if n == nil {
		n = nopNotifier{}
	}
	e := &IdleEngine{
		reg:      reg,
		relays:   relays,
		printer:  printer,
		notifier: n,
		log:      logger.OrNop(log).Named("idle"),
		minute:   time.Minute,
		second:   time.Second,
		poll:     defaultPollInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.startedAt.IsZero() {
		e.startedAt = e.now()
	}
	e.deadline = timer.New(e.onDeadline)
	return e
}

// Start arms the engine when idle shutdown is enabled and a participating relay is on.
func (e *IdleEngine) Start() {
	e.Enable()
}

// Enable applies a persisted powerOffWhenIdle=true. It arms the idle deadline when a
// participating relay is on; a running cycle is left alone.
func (e *IdleEngine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	s := e.reg.Settings()
	if !s.PowerOffWhenIdle {
		return
	}
	switch e.state {
	case IdleDisabled, IdleShutdownFired:
		if !e.qualifies() {
			break
		}
		// no deadline runs in these states
		e.state = IdleArmed
		e.deadline.Arm(e.interval(s))
	case IdleArmed:
		e.deadline.Reset(e.interval(s))
	}
	e.broadcastLocked(s)
}

// Disable stops every timer and wait and moves to DISABLED.
func (e *IdleEngine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.deadline.Cancel()
	e.state = IdleDisabled
	e.log.Infow("idle_disabled")
	e.broadcastLocked(e.reg.Settings())
}

// Rearm restarts the idle deadline after a participating relay was switched on.
// A cycle that is already cooling down or counting is not interrupted.
func (e *IdleEngine) Rearm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	s := e.reg.Settings()
	if !s.PowerOffWhenIdle {
		return
	}
	switch e.state {
	case IdleDisabled, IdleShutdownFired, IdleArmed:
		e.armLocked(s)
	}
}

// Activity reports printer activity: a print start or G-code outside the ignore list.
// It cancels a running cycle and restarts the full idle interval. It does nothing while
// DISABLED.
func (e *IdleEngine) Activity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.state == IdleDisabled {
		return
	}
	s := e.reg.Settings()
	hadCountdown := e.countdown != nil
	e.cancelLocked()
	e.armLocked(s)
	if hadCountdown {
		e.broadcastLocked(s)
	}
}

// Abort cancels the abort countdown and restarts the idle interval. It reports false,
// and changes nothing, when no countdown is running.
func (e *IdleEngine) Abort() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != IdleAbortCountdown {
		return false
	}
	s := e.reg.Settings()
	e.cancelLocked()
	e.armLocked(s)
	e.log.Infow("idle_countdown_aborted")
	e.broadcastLocked(s)
	return true
}

// SetTimelapseActive is driven by timelapse render events.
func (e *IdleEngine) SetTimelapseActive(active bool) {
	e.mu.Lock()
	e.timelapseActive = active
	e.mu.Unlock()
}

// Status is the message broadcast to UI clients.
func (e *IdleEngine) Status() models.IdleStatusMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(e.reg.Settings())
}

func (e *IdleEngine) State() IdleState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot describes the engine for the status endpoint.
func (e *IdleEngine) Snapshot() models.IdleSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.statusLocked(e.reg.Settings())
	return models.IdleSnapshot{
		State:             e.state.String(),
		PowerOffWhenIdle:  st.PowerOffWhenIdle,
		TimeoutValue:      st.TimeoutValue,
		DeadlineRemaining: int(e.deadline.Remaining().Round(time.Second) / time.Second),
		DeadlineInterval:  int(e.deadline.Interval().Round(time.Second) / time.Second),
		WaitingForHeaters: e.waitingHeaters,
		WaitingTimelapse:  e.waitingTimelapse,
		TimelapseActive:   e.timelapseActive,
	}
}

// Stop cancels everything and waits for a running cycle to return. The engine ignores
// every call afterwards.
func (e *IdleEngine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.cancelLocked()
	e.deadline.Cancel()
	e.state = IdleDisabled
	e.mu.Unlock()
	e.wg.Wait()
}

// IgnoresCommand reports whether the G-code word is in the idle ignore list.
func (e *IdleEngine) IgnoresCommand(word string) bool {
	word = strings.ToUpper(strings.TrimSpace(word))
	if word == "" {
		return true
	}
	for _, c := range strings.Split(e.reg.Settings().IdleIgnoreCommands, ",") {
		if strings.ToUpper(strings.TrimSpace(c)) == word {
			return true
		}
	}
	return false
}

func (e *IdleEngine) onDeadline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A reset between expiry and this call has already armed a new deadline.
	if e.stopped || e.state != IdleArmed || e.deadline.Active() {
		return
	}
	s := e.reg.Settings()
	if !s.PowerOffWhenIdle {
		e.state = IdleDisabled
		return
	}
	interval := e.interval(s)
	if e.now().Sub(e.startedAt) < interval {
		e.log.Debugw("idle_uptime_guard")
		e.deadline.Reset(interval)
		return
	}
	if e.printer != nil && (e.printer.IsPrinting() || e.printer.IsPaused()) {
		e.log.Debugw("idle_printer_busy")
		e.deadline.Reset(interval)
		return
	}
	if !e.qualifies() {
		e.log.Infow("idle_no_relay_on")
		e.state = IdleDisabled
		return
	}

	e.cycle++
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelCycle = cancel
	e.state = IdleCooldownWait
	e.waitingHeaters = true
	e.log.Infow("idle_timeout_reached", "idle_minutes", s.IdleTimeout)

	e.wg.Add(1)
	go e.runCycle(ctx, e.cycle, s)
}

// runCycle walks COOLDOWN_WAIT, TIMELAPSE_WAIT and ABORT_COUNTDOWN, then shuts down.
// Every step checks that the cycle is still current.
func (e *IdleEngine) runCycle(ctx context.Context, id uint64, s models.Settings) {
	defer e.wg.Done()

	if !e.waitForHeaters(ctx, float64(s.IdleTimeoutWaitTemp)) {
		return
	}
	if !e.advance(id, IdleTimelapseWait) {
		return
	}
	if !e.waitForTimelapse(ctx, id) {
		return
	}
	if !e.advance(id, IdleAbortCountdown) {
		return
	}
	if !e.countDown(ctx, id, s.AbortTimeout) {
		return
	}
	if !e.advance(id, IdleShutdownFired) {
		return
	}
	e.shutdown(id)
}

func (e *IdleEngine) waitForHeaters(ctx context.Context, waitTemp float64) bool {
	if e.printer == nil {
		return ctx.Err() == nil
	}
	for name, t := range e.printer.Temperatures() {
		if t.Target > 0 {
			if err := e.printer.SetTemperature(name, 0); err != nil {
				e.log.Warnw("idle_heater_off_failed", "heater", name, "err", err)
			}
		}
	}
	for {
		if ctx.Err() != nil {
			return false
		}
		if e.toolsCool(waitTemp) {
			return true
		}
		e.log.Debugw("idle_waiting_for_heaters", "wait_temp", waitTemp)
		if sleepCtx(ctx, e.poll) != nil {
			return false
		}
	}
}

func (e *IdleEngine) toolsCool(waitTemp float64) bool {
	for name, t := range e.printer.Temperatures() {
		if strings.HasPrefix(name, toolHeaterPrefix) && t.Actual > waitTemp {
			return false
		}
	}
	return true
}

func (e *IdleEngine) waitForTimelapse(ctx context.Context, id uint64) bool {
	for {
		e.mu.Lock()
		if id != e.cycle || ctx.Err() != nil {
			e.mu.Unlock()
			return false
		}
		active := e.timelapseActive
		e.mu.Unlock()
		if !active {
			return true
		}
		e.log.Debugw("idle_waiting_for_timelapse")
		if sleepCtx(ctx, e.poll) != nil {
			return false
		}
	}
}

func (e *IdleEngine) countDown(ctx context.Context, id uint64, seconds int) bool {
	for remaining := seconds; ; remaining-- {
		e.mu.Lock()
		if id != e.cycle || ctx.Err() != nil {
			e.mu.Unlock()
			return false
		}
		if remaining <= 0 {
			e.countdown = nil
			e.mu.Unlock()
			return true
		}
		v := remaining
		e.countdown = &v
		e.broadcastLocked(e.reg.Settings())
		e.mu.Unlock()

		if sleepCtx(ctx, e.second) != nil {
			return false
		}
	}
}

// advance moves the current cycle to next. It reports false when the cycle was
// cancelled in the meantime.
func (e *IdleEngine) advance(id uint64, next IdleState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != e.cycle || e.cancelCycle == nil {
		return false
	}
	e.state = next
	e.waitingHeaters = false
	e.waitingTimelapse = next == IdleTimelapseWait
	e.log.Debugw("idle_state", "state", next.String())
	return true
}

func (e *IdleEngine) shutdown(id uint64) {
	ctx := context.Background()
	targets := e.reg.Filter(func(r models.Relay) bool { return r.AutomaticShutdownEnabled })
	e.log.Infow("idle_shutdown", "relays", len(targets))
	e.relays.Record(ctx, models.EventAutoShutdown, nil, "Idle timeout reached, powering off", map[string]any{"relays": len(targets)})

	e.mu.Lock()
	e.broadcastLocked(e.reg.Settings())
	e.mu.Unlock()

	for _, r := range targets {
		if err := e.relays.TurnOff(ctx, r); err != nil {
			e.log.Warnw("idle_turn_off_failed", "relay", r.Key().String(), "err", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if id != e.cycle || e.stopped {
		return
	}
	e.cancelCycle = nil
	s := e.reg.Settings()
	if s.PowerOffWhenIdle && e.qualifies() {
		e.armLocked(s)
		return
	}
	e.state = IdleDisabled
}

func (e *IdleEngine) armLocked(s models.Settings) {
	e.state = IdleArmed
	e.deadline.Reset(e.interval(s))
}

// cancelLocked stops a running cycle. It is a no-op without one.
func (e *IdleEngine) cancelLocked() {
	if e.cancelCycle != nil {
		e.cancelCycle()
		e.cancelCycle = nil
	}
	e.cycle++
	e.countdown = nil
	e.waitingHeaters = false
	e.waitingTimelapse = false
}

func (e *IdleEngine) qualifies() bool {
	return e.reg.Any(func(r models.Relay) bool {
		return r.AutomaticShutdownEnabled && r.CurrentState == models.StateOn
	})
}

func (e *IdleEngine) interval(s models.Settings) time.Duration {
	return time.Duration(s.IdleTimeout) * e.minute
}

func (e *IdleEngine) statusLocked(s models.Settings) models.IdleStatusMessage {
	msg := models.IdleStatusMessage{PowerOffWhenIdle: s.PowerOffWhenIdle, Type: idleStatusType}
	if e.countdown != nil {
		v := *e.countdown
		msg.TimeoutValue = &v
	}
	return msg
}

func (e *IdleEngine) broadcastLocked(s models.Settings) {
	e.notifier.Send(e.statusLocked(s))
}
