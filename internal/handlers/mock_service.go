package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseCaller   service.Caller
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (service.Caller, error) {
	m.lastParseToken = token
	return m.parseCaller, m.parseErr
}

type mockRelays struct {
	result   service.CommandResult
	relay    models.Relay
	settings models.Settings
	err      error

	lastCaller  service.Caller
	lastCommand service.CommandRequest
	lastRelay   service.RelayRequest
	lastPatch   service.SettingsPatch
	calls       int
}

func (m *mockRelays) Execute(ctx context.Context, caller service.Caller, req service.CommandRequest) (service.CommandResult, error) {
	m.calls++
	m.lastCaller = caller
	m.lastCommand = req
	return m.result, m.err
}
func (m *mockRelays) UpsertRelay(ctx context.Context, caller service.Caller, req service.RelayRequest) (models.Relay, error) {
	m.calls++
	m.lastCaller = caller
	m.lastRelay = req
	return m.relay, m.err
}
func (m *mockRelays) Settings(ctx context.Context) models.Settings {
	return m.settings
}
func (m *mockRelays) UpdateSettings(ctx context.Context, caller service.Caller, p service.SettingsPatch) (models.Settings, error) {
	m.calls++
	m.lastCaller = caller
	m.lastPatch = p
	return m.settings, m.err
}

type mockMonitoring struct {
	status models.Status
	err    error
}

func (m *mockMonitoring) GetStatus(ctx context.Context) (models.Status, error) {
	return m.status, m.err
}

type mockEventLog struct {
	resp     []models.RelayEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.RelayEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockHost struct {
	mu        sync.Mutex
	eventErr  error
	forward   bool
	events    []string
	lastLine  string
	lastEvent map[string]any
}

func (m *mockHost) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.lastEvent = payload
	return m.eventErr
}
func (m *mockHost) InterceptGcode(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLine = line
	return m.forward
}
func (m *mockHost) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// mockHub hands every subscriber the same channel.
type mockHub struct {
	ch chan any
}

func (m *mockHub) Subscribe() (<-chan any, func()) {
	return m.ch, func() {}
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

var operator = service.Caller{UserID: 1, CanControl: true}
