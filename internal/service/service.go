package service

import (
	"context"
	"time"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/repository"
)

// Messenger is the MQTT transport. A nil Messenger means no broker is bound.
type Messenger interface {
	Publish(topic, payload string) error
	Subscribe(topic string, key models.RelayKey, h func(key models.RelayKey, payload string)) error
	Unsubscribe(topic string) error
}

// Printer is the printer oracle of the host.
type Printer interface {
	IsPrinting() bool
	IsPaused() bool
	IsClosedOrError() bool
	Temperatures() map[string]models.Temperature
	SetTemperature(heater string, target float64) error
	Connect() error
	Disconnect() error
	SelectFileAndPrint(path string) error
}

// Notifier pushes messages to UI clients.
type Notifier interface {
	Send(msg any)
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (Caller, error)
}

// Relays is the command API surface.
type Relays interface {
	Execute(ctx context.Context, caller Caller, req CommandRequest) (CommandResult, error)
	UpsertRelay(ctx context.Context, caller Caller, req RelayRequest) (models.Relay, error)
	Settings(ctx context.Context) models.Settings
	UpdateSettings(ctx context.Context, caller Caller, p SettingsPatch) (models.Settings, error)
}

// Monitoring exposes a read-only view of relays, the idle engine and the printer.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.Status, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.RelayEvent, error)
}

// Host receives lifecycle events and outgoing G-code lines from the printer host.
type Host interface {
	HandleEvent(ctx context.Context, event string, payload map[string]any) error
	InterceptGcode(line string) (forward bool)
}

// Core holds the relay components for the process that owns them.
type Core struct {
	Registry      *registry.Registry
	Controller    *Controller
	Subscriptions *Subscriptions
	Idle          *IdleEngine
	Gcode         *GcodeInterceptor
	Events        *EventRouter
}

type Service struct {
	Relays
	Monitoring
	EventLog
	Host
	Authorization

	Core *Core
}

// AuthConfig configures token signing.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// Deps are the collaborators of the relay core.
type Deps struct {
	Registry  *registry.Registry
	Messenger Messenger
	Printer   Printer
	Notifier  Notifier
	Repos     *repository.Repository
	Auth      AuthConfig
	Log       *logger.Logger

	IdleOptions []IdleOption
}

// NewService wires the relay core and the API services on top of it.
func NewService(d Deps) *Service {
	log := logger.OrNop(d.Log)
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	var events repository.EventRepo
	if d.Repos != nil {
		events = d.Repos.EventRepo
	}

	tg := newTransportGuard(d.Messenger, d.Notifier, log)
	ctrl := NewController(d.Registry, tg, d.Printer, events, log)
	subs := NewSubscriptions(d.Registry, tg, d.Notifier, events, log)
	idle := NewIdleEngine(d.Registry, ctrl, d.Printer, d.Notifier, log, d.IdleOptions...)
	ctrl.AttachIdle(idle)
	subs.AttachIdle(idle)
	gcode := NewGcodeInterceptor(d.Registry, ctrl, idle, log)
	router := NewEventRouter(d.Registry, ctrl, subs, idle, d.Printer, d.Notifier, log)

	core := &Core{
		Registry:      d.Registry,
		Controller:    ctrl,
		Subscriptions: subs,
		Idle:          idle,
		Gcode:         gcode,
		Events:        router,
	}

	svc := &Service{
		Relays:     NewCommandService(core, log),
		Monitoring: NewMonitoringService(core, d.Printer, tg),
		Host:       &hostService{events: router, gcode: gcode},
		Core:       core,
	}
	if d.Repos != nil {
		svc.EventLog = NewEventLogService(d.Repos.EventRepo)
		svc.Authorization = NewAuthService(d.Repos.Auth, d.Auth)
	}
	return svc
}

type hostService struct {
	events *EventRouter
	gcode  *GcodeInterceptor
}

func (h *hostService) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	return h.events.Handle(ctx, event, payload)
}

func (h *hostService) InterceptGcode(line string) bool {
	return h.gcode.Intercept(line)
}
