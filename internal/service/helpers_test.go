package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
)

type published struct {
	topic   string
	payload string
}

// fakeMessenger behaves like a broker with Tasmota plugs behind it: when echo is set,
// an ON/OFF command is answered on the matching status topic.
type fakeMessenger struct {
	mu         sync.Mutex
	echo       bool
	publishErr error
	sent       []published
	handlers   map[string]func(models.RelayKey, string)
	keys       map[string]models.RelayKey
	unsubbed   []string
}

func newFakeMessenger(echo bool) *fakeMessenger {
	return &fakeMessenger{
		echo:     echo,
		handlers: map[string]func(models.RelayKey, string){},
		keys:     map[string]models.RelayKey{},
	}
}

func (m *fakeMessenger) Publish(topic, payload string) error {
	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}
	m.sent = append(m.sent, published{topic, payload})
	var (
		h   func(models.RelayKey, string)
		key models.RelayKey
	)
	if m.echo && (payload == "ON" || payload == "OFF") {
		stat := strings.Replace(topic, "/cmnd/", "/stat/", 1)
		h, key = m.handlers[stat], m.keys[stat]
	}
	m.mu.Unlock()

	if h != nil {
		h(key, payload)
	}
	return nil
}

func (m *fakeMessenger) Subscribe(topic string, key models.RelayKey, h func(models.RelayKey, string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = h
	m.keys[topic] = key
	return nil
}

func (m *fakeMessenger) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	delete(m.keys, topic)
	m.unsubbed = append(m.unsubbed, topic)
	return nil
}

// count returns how many times payload was published to topic.
func (m *fakeMessenger) count(topic, payload string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.sent {
		if p.topic == topic && p.payload == payload {
			n++
		}
	}
	return n
}

func (m *fakeMessenger) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMessenger) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

type fakePrinter struct {
	mu           sync.Mutex
	printing     bool
	paused       bool
	closed       bool
	temps        map[string]models.Temperature
	tempReads    int
	setTempCalls int
	connects     int
	disconnects  int
	printed      []string
	trace        *[]string
}

func newFakePrinter() *fakePrinter {
	return &fakePrinter{temps: map[string]models.Temperature{}}
}

func (p *fakePrinter) IsPrinting() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.printing }
func (p *fakePrinter) IsPaused() bool   { p.mu.Lock(); defer p.mu.Unlock(); return p.paused }
func (p *fakePrinter) IsClosedOrError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePrinter) Temperatures() map[string]models.Temperature {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tempReads++
	out := make(map[string]models.Temperature, len(p.temps))
	for k, v := range p.temps {
		out[k] = v
	}
	return out
}

func (p *fakePrinter) SetTemperature(heater string, target float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setTempCalls++
	t := p.temps[heater]
	t.Target = target
	p.temps[heater] = t
	return nil
}

func (p *fakePrinter) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	p.closed = false
	return nil
}

func (p *fakePrinter) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	p.closed = true
	if p.trace != nil {
		*p.trace = append(*p.trace, "disconnect")
	}
	return nil
}

func (p *fakePrinter) SelectFileAndPrint(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, path)
	p.printing = true
	return nil
}

func (p *fakePrinter) setTemp(name string, actual float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.temps[name]
	t.Actual = actual
	p.temps[name] = t
}

func (p *fakePrinter) counts() (reads, sets int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempReads, p.setTempCalls
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []any
}

func (n *fakeNotifier) Send(msg any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) stateMessages() []models.RelayStateMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.RelayStateMessage
	for _, m := range n.msgs {
		if s, ok := m.(models.RelayStateMessage); ok {
			out = append(out, s)
		}
	}
	return out
}

func (n *fakeNotifier) noTransport() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if _, ok := m.(models.NoTransportMessage); ok {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) lastIdle() (models.IdleStatusMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if s, ok := n.msgs[i].(models.IdleStatusMessage); ok {
			return s, true
		}
	}
	return models.IdleStatusMessage{}, false
}

type recordingRunner struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recordingRunner) Run(command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, command)
	return nil
}

// recordingEventRepo keeps appended events in memory.
type recordingEventRepo struct {
	mu     sync.Mutex
	events []models.RelayEvent
}

func (r *recordingEventRepo) Append(ctx context.Context, e models.RelayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.RelayEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RelayEvent
	for _, e := range r.events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *recordingEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv is a fully wired core with fakes around it.
type testEnv struct {
	reg      *registry.Registry
	store    *registry.MemoryStore
	msg      *fakeMessenger
	printer  *fakePrinter
	notifier *fakeNotifier
	events   *recordingEventRepo
	runner   *recordingRunner
	core     *Core
	cmds     *CommandService
}

// Scaled time base for engine tests: one configured minute is 40ms, one second 4ms.
const (
	testMinute = 40 * time.Millisecond
	testSecond = 4 * time.Millisecond
	testPoll   = 4 * time.Millisecond
)

type envOption func(*envConfig)

type envConfig struct {
	noTransport bool
	echo        bool
	idleOpts    []IdleOption
}

func withoutTransport() envOption { return func(c *envConfig) { c.noTransport = true } }
func withEcho() envOption         { return func(c *envConfig) { c.echo = true } }
func withIdle(opts ...IdleOption) envOption {
	return func(c *envConfig) { c.idleOpts = append(c.idleOpts, opts...) }
}

func newTestEnv(t *testing.T, s models.Settings, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{
		idleOpts: []IdleOption{
			WithTimeUnits(testMinute, testSecond),
			WithPollInterval(testPoll),
			WithClock(time.Now, time.Now().Add(-time.Hour)),
		},
	}
	for _, o := range opts {
		o(&cfg)
	}

	store := registry.NewMemoryStore(s)
	reg := registry.New(store, s)
	env := &testEnv{
		reg:      reg,
		store:    store,
		msg:      newFakeMessenger(cfg.echo),
		printer:  newFakePrinter(),
		notifier: &fakeNotifier{},
		events:   &recordingEventRepo{},
		runner:   &recordingRunner{},
	}

	var m Messenger = env.msg
	if cfg.noTransport {
		m = nil
	}
	tg := newTransportGuard(m, env.notifier, nil)
	ctrl := NewController(reg, tg, env.printer, env.events, nil)
	ctrl.runner = env.runner
	ctrl.after = func(_ time.Duration, fn func()) { fn() }
	ctrl.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	subs := NewSubscriptions(reg, tg, env.notifier, env.events, nil)
	idle := NewIdleEngine(reg, ctrl, env.printer, env.notifier, nil, cfg.idleOpts...)
	ctrl.AttachIdle(idle)
	subs.AttachIdle(idle)

	env.core = &Core{
		Registry:      reg,
		Controller:    ctrl,
		Subscriptions: subs,
		Idle:          idle,
		Gcode:         NewGcodeInterceptor(reg, ctrl, idle, nil),
		Events:        NewEventRouter(reg, ctrl, subs, idle, env.printer, env.notifier, nil),
	}
	env.cmds = NewCommandService(env.core, nil)

	t.Cleanup(func() {
		idle.Stop()
		ctrl.Wait()
	})
	return env
}

func settingsWith(relays ...models.Relay) models.Settings {
	s := models.DefaultSettings()
	s.Relays = relays
	return s
}

func relayIn(topic string, state models.State) models.Relay {
	r := models.NewRelay(topic, "")
	r.CurrentState = state
	return r
}
