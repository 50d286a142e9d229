package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sous_vide/internal/connection"
	"sous_vide/internal/models"
	"sous_vide/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// mockDevice returns reply (or err) for every command and records the calls.
type mockDevice struct {
	reply   string
	err     error
	reading models.TemperatureReading
	stats   connection.Stats

	calls       []string
	lastTemp    string
	lastMinutes int
	lastRGB     [3]int
	lastIdle    int
}

func (m *mockDevice) do(name string) (string, error) {
	m.calls = append(m.calls, name)
	return m.reply, m.err
}

func (m *mockDevice) ReadTemperature(context.Context) (models.TemperatureReading, error) {
	m.calls = append(m.calls, "read_temp")
	return m.reading, m.err
}
func (m *mockDevice) SetTemperature(_ context.Context, value string) (string, error) {
	m.lastTemp = value
	return m.do("set_temp")
}
func (m *mockDevice) Start(context.Context) (string, error)      { return m.do("start") }
func (m *mockDevice) Stop(context.Context) (string, error)       { return m.do("stop") }
func (m *mockDevice) StartTimer(context.Context) (string, error) { return m.do("start_timer") }
func (m *mockDevice) StopTimer(context.Context) (string, error)  { return m.do("stop_timer") }
func (m *mockDevice) ReadTimer(context.Context) (string, error)  { return m.do("read_timer") }
func (m *mockDevice) SetTimer(_ context.Context, minutes int) (string, error) {
	m.lastMinutes = minutes
	return m.do("set_timer")
}
func (m *mockDevice) SetLED(_ context.Context, r, g, b int) (string, error) {
	m.lastRGB = [3]int{r, g, b}
	return m.do("set_led")
}
func (m *mockDevice) SetIdleTimeout(_ context.Context, seconds int) error {
	m.lastIdle = seconds
	_, err := m.do("set_idle_timeout")
	return err
}
func (m *mockDevice) LinkStats() connection.Stats { return m.stats }

type mockPlanner struct {
	scheduleID  int
	scheduleErr error
	cancelErr   error
	actions     []models.ActionSummary

	lastStart     string
	lastTemp      string
	lastCancelled int
}

func (m *mockPlanner) ScheduleAction(_ context.Context, startTime, temperature string) (int, error) {
	m.lastStart = startTime
	m.lastTemp = temperature
	return m.scheduleID, m.scheduleErr
}
func (m *mockPlanner) ListActions(context.Context) []models.ActionSummary { return m.actions }
func (m *mockPlanner) CancelAction(_ context.Context, id int) error {
	m.lastCancelled = id
	return m.cancelErr
}

type mockMonitoring struct {
	cached    models.DeviceStatus
	live      models.DeviceStatus
	refreshes int
}

func (m *mockMonitoring) Seed(context.Context) error                    { return nil }
func (m *mockMonitoring) GetStatus(context.Context) models.DeviceStatus { return m.cached }
func (m *mockMonitoring) RefreshStatus(context.Context) models.DeviceStatus {
	m.refreshes++
	return m.live
}
func (m *mockMonitoring) Run(context.Context, time.Duration) {}

type mockEventLog struct {
	resp      []models.DeviceEvent
	err       error
	calls     int
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.DeviceEvent, error) {
	m.calls++
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

// newTestRouter builds the full router with auth enabled.
func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, Options{AuthEnabled: true})
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
