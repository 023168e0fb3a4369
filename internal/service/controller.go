package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/repository"
	"tasmota_mqtt/internal/topic"
)

// Tasmota POWER payloads.
const (
	payloadOn    = "ON"
	payloadOff   = "OFF"
	payloadQuery = ""
)

var ErrRelayNotFound = errors.New("relay not found")

// CommandRunner executes auxiliary shell commands.
type CommandRunner interface {
	Run(command string) error
}

type shellRunner struct{}

func (shellRunner) Run(command string) error {
	return exec.Command("bash", "-c", command).Run()
}

// idleRearmer is the part of the idle engine the controller needs.
type idleRearmer interface {
	Rearm()
}

// Controller switches single relays and runs their side effects.
type Controller struct {
	reg     *registry.Registry
	tg      *transportGuard
	printer Printer
	events  repository.EventRepo
	log     *logger.Logger

	idle idleRearmer

	runner CommandRunner
	// after schedules delayed side effects.
	after func(d time.Duration, fn func())
	// sleep blocks between disconnect and power off.
	sleep func(ctx context.Context, d time.Duration) error
	unit  time.Duration

	wg sync.WaitGroup
}

func NewController(reg *registry.Registry, tg *transportGuard, printer Printer, events repository.EventRepo, log *logger.Logger) *Controller {
	return &Controller{
		reg:     reg,
		tg:      tg,
		printer: printer,
		events:  events,
		log:     logger.OrNop(log).Named("relay"),
		runner:  shellRunner{},
		after:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		sleep:   sleepCtx,
		unit:    time.Second,
	}
}

// AttachIdle lets turn-on rearm the idle engine.
func (c *Controller) AttachIdle(idle idleRearmer) {
	c.idle = idle
}

// TurnOn publishes ON and schedules the relay's power-on side effects.
// The relay state is not touched; it changes when the plug confirms.
func (c *Controller) TurnOn(ctx context.Context, r models.Relay) error {
	err := c.publish(r, payloadOn)
	if err != nil {
		c.log.Errorw("relay_turn_on_failed", "relay", r.Key().String(), "err", err)
	} else {
		c.log.Infow("relay_turn_on", "relay", r.Key().String())
	}

	if r.SysCmdOn && r.SysCmdRunOn != "" {
		cmd := r.SysCmdRunOn
		c.after(c.seconds(r.SysCmdOnDelay), func() { c.runAux(r, cmd) })
	}
	if r.Connect && c.printer != nil && c.printer.IsClosedOrError() {
		c.after(c.seconds(r.ConnectOnDelay), func() {
			if err := c.printer.Connect(); err != nil {
				c.log.Warnw("printer_connect_failed", "relay", r.Key().String(), "err", err)
			}
		})
	}
	if r.AutomaticShutdownEnabled && c.idle != nil {
		c.idle.Rearm()
	}

	c.record(ctx, models.EventPowerOn, r, "Relay turned on", err)
	return err
}

// TurnOff disconnects the printer first when configured, waits out the disconnect
// delay and only then publishes OFF. It blocks; dispatch paths use TurnOffAsync.
func (c *Controller) TurnOff(ctx context.Context, r models.Relay) error {
	if r.SysCmdOff && r.SysCmdRunOff != "" {
		cmd := r.SysCmdRunOff
		c.after(c.seconds(r.SysCmdOffDelay), func() { c.runAux(r, cmd) })
	}
	if r.Disconnect && c.printer != nil {
		if err := c.printer.Disconnect(); err != nil {
			c.log.Warnw("printer_disconnect_failed", "relay", r.Key().String(), "err", err)
		}
		if err := c.sleep(ctx, c.seconds(r.DisconnectOffDelay)); err != nil {
			return fmt.Errorf("turn off %s: %w", r.Key(), err)
		}
	}

	err := c.publish(r, payloadOff)
	if err != nil {
		c.log.Errorw("relay_turn_off_failed", "relay", r.Key().String(), "err", err)
	} else {
		c.log.Infow("relay_turn_off", "relay", r.Key().String())
	}
	c.record(ctx, models.EventPowerOff, r, "Relay turned off", err)
	return err
}

// GcodeTurnOff is TurnOff that refuses to cut power while a print runs on a relay
// marked warnPrinting.
func (c *Controller) GcodeTurnOff(ctx context.Context, r models.Relay) error {
	if r.WarnPrinting && c.printer != nil && c.printer.IsPrinting() {
		c.log.Infow("relay_turn_off_skipped_printing", "relay", r.Key().String())
		return nil
	}
	return c.TurnOff(ctx, r)
}

// TurnOffAsync runs TurnOff on a worker goroutine.
func (c *Controller) TurnOffAsync(r models.Relay, guarded bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := context.Background()
		if guarded {
			_ = c.GcodeTurnOff(ctx, r)
			return
		}
		_ = c.TurnOff(ctx, r)
	}()
}

// CheckRelay asks the plug to report its state.
func (c *Controller) CheckRelay(r models.Relay) error {
	if err := c.publish(r, payloadQuery); err != nil {
		c.log.Warnw("relay_check_failed", "relay", r.Key().String(), "err", err)
		return err
	}
	return nil
}

// Toggle turns an ON relay off and an OFF relay on. A relay in UNKNOWN state is left
// alone. The turn-off runs on a worker.
func (c *Controller) Toggle(ctx context.Context, key models.RelayKey) (models.Relay, error) {
	r, ok := c.reg.Find(key)
	if !ok {
		return models.Relay{}, fmt.Errorf("%w: %s", ErrRelayNotFound, key)
	}
	switch r.CurrentState {
	case models.StateOn:
		c.TurnOffAsync(r, false)
	case models.StateOff:
		if err := c.TurnOn(ctx, r); err != nil {
			return r, err
		}
	default:
		c.log.Infow("relay_toggle_unknown_state", "relay", key.String())
	}
	return r, nil
}

// TransportReady returns ErrTransportUnavailable when no messenger is bound.
func (c *Controller) TransportReady() error {
	_, err := c.tg.get()
	return err
}

// Wait blocks until every turn-off worker has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) publish(r models.Relay, payload string) error {
	pattern := c.reg.Settings().FullTopicPattern
	return c.tg.publish(topic.Full(pattern, r, topic.Command), payload)
}

func (c *Controller) runAux(r models.Relay, command string) {
	if err := c.runner.Run(command); err != nil {
		c.log.Warnw("aux_command_failed", "relay", r.Key().String(), "command", command, "err", err)
		return
	}
	c.log.Debugw("aux_command_done", "relay", r.Key().String(), "command", command)
}

// Record appends an entry to the event log. A failed write is logged only.
func (c *Controller) Record(ctx context.Context, typ string, r *models.Relay, description string, meta map[string]any) {
	if c.events == nil {
		return
	}
	ev := models.RelayEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: description,
	}
	if r != nil {
		ev.Topic = r.Topic
		ev.RelayN = r.RelayN
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	if err := c.events.Append(ctx, ev); err != nil {
		c.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}

func (c *Controller) record(ctx context.Context, typ string, r models.Relay, description string, err error) {
	if err != nil {
		c.Record(ctx, models.EventError, &r, description+" failed", map[string]any{"error": err.Error(), "action": typ})
		return
	}
	c.Record(ctx, typ, &r, description, nil)
}

func (c *Controller) seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * c.unit
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
