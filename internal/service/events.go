package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
)

// Host lifecycle events, named as the printer host reports them.
const (
	EventClientOpened   = "ClientOpened"
	EventPrintStarted   = "PrintStarted"
	EventError          = "Error"
	EventMovieRendering = "MovieRendering"
	EventMovieDone      = "MovieDone"
	EventMovieFailed    = "MovieFailed"
	EventConnected      = "Connected"
	EventUpload         = "Upload"
	EventStartup        = "Startup"
	EventShutdown       = "Shutdown"
)

var errUploadWithoutPath = errors.New("upload event without a file path")

// EventRouter dispatches host lifecycle events to the relay components.
type EventRouter struct {
	reg      *registry.Registry
	ctrl     *Controller
	subs     *Subscriptions
	idle     *IdleEngine
	printer  Printer
	notifier Notifier
	log      *logger.Logger

	mu        sync.Mutex
	autostart string
}

func NewEventRouter(reg *registry.Registry, ctrl *Controller, subs *Subscriptions, idle *IdleEngine, printer Printer, n Notifier, log *logger.Logger) *EventRouter {
	if n == nil {
		n = nopNotifier{}
	}
	return &EventRouter{
		reg:      reg,
		ctrl:     ctrl,
		subs:     subs,
		idle:     idle,
		printer:  printer,
		notifier: n,
		log:      logger.OrNop(log).Named("events"),
	}
}

// Handle dispatches one event. Events it does not care about are ignored.
func (r *EventRouter) Handle(ctx context.Context, event string, payload map[string]any) error {
	r.log.Debugw("host_event", "event", event)

	switch event {
	case EventClientOpened:
		r.notifier.Send(r.idle.Status())

	case EventPrintStarted:
		r.idle.Activity()

	case EventError:
		for _, relay := range r.reg.Filter(func(x models.Relay) bool { return x.EventOnError }) {
			r.log.Warnw("error_shutdown", "relay", relay.Key().String())
			r.ctrl.TurnOffAsync(relay, false)
		}

	case EventMovieRendering:
		r.idle.SetTimelapseActive(true)

	case EventMovieDone, EventMovieFailed:
		r.idle.SetTimelapseActive(false)

	case EventConnected:
		return r.startAutostart()

	case EventUpload:
		return r.handleUpload(ctx, payload)

	case EventStartup:
		r.startup(ctx)

	case EventShutdown:
		r.idle.Stop()
		r.ctrl.Wait()
	}
	return nil
}

// Autostart returns the file queued by an upload, if any.
func (r *EventRouter) Autostart() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autostart
}

func (r *EventRouter) startup(ctx context.Context) {
	for _, relay := range r.reg.Filter(func(x models.Relay) bool { return x.EventOnStartup }) {
		r.log.Infow("startup_turn_on", "relay", relay.Key().String())
		_ = r.ctrl.TurnOn(ctx, relay)
	}
	r.subs.Start()
	r.idle.Start()
}

// handleUpload queues the uploaded file and powers on the upload relays. The print
// starts on the Connected event that follows. A printer that is already connected
// never sends one, so nothing is queued then.
func (r *EventRouter) handleUpload(ctx context.Context, payload map[string]any) error {
	if r.printer != nil && (r.printer.IsPrinting() || r.printer.IsPaused() || !r.printer.IsClosedOrError()) {
		return nil
	}
	relays := r.reg.Filter(func(x models.Relay) bool { return x.EventOnUpload })
	if len(relays) == 0 {
		return nil
	}

	path := uploadPath(payload)
	if path == "" {
		return errUploadWithoutPath
	}
	r.mu.Lock()
	r.autostart = path
	r.mu.Unlock()
	r.log.Infow("upload_autostart_queued", "file", path)

	for _, relay := range relays {
		_ = r.ctrl.TurnOn(ctx, relay)
	}
	return nil
}

func (r *EventRouter) startAutostart() error {
	r.mu.Lock()
	path := r.autostart
	r.autostart = ""
	r.mu.Unlock()
	if path == "" || r.printer == nil {
		return nil
	}
	r.log.Infow("autostart_print", "file", path)
	if err := r.printer.SelectFileAndPrint(path); err != nil {
		r.log.Errorw("autostart_failed", "file", path, "err", err)
		return fmt.Errorf("autostart %s: %w", path, err)
	}
	return nil
}

func uploadPath(payload map[string]any) string {
	for _, k := range []string{"path", "file", "name"} {
		if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
