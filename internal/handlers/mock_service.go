package handlers

import (
	"context"
	"net/http"
	"time"

	"fenix_bridge/internal/models"
	"fenix_bridge/internal/service"

	"github.com/gin-gonic/gin"
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
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockClimate struct {
	presetErr error
	tempErr   error

	lastPresetDevice string
	lastPresetMode   string
	lastTempDevice   string
	lastTemp         float64
	presetCalls      int
	tempCalls        int
}

func (m *mockClimate) SetPresetMode(ctx context.Context, deviceID, mode string) error {
	m.presetCalls++
	m.lastPresetDevice = deviceID
	m.lastPresetMode = mode
	return m.presetErr
}
func (m *mockClimate) SetTemperature(ctx context.Context, deviceID string, tempC float64) error {
	m.tempCalls++
	m.lastTempDevice = deviceID
	m.lastTemp = tempC
	return m.tempErr
}

type mockHoliday struct {
	scheduleErr error
	cancelErr   error

	lastInstallation string
	lastMode         string
	lastStart        time.Time
	lastEnd          time.Time
	scheduleCalls    int
	cancelCalls      int
}

func (m *mockHoliday) Schedule(ctx context.Context, installationID string, start, end time.Time, mode string) error {
	m.scheduleCalls++
	m.lastInstallation = installationID
	m.lastStart = start
	m.lastEnd = end
	m.lastMode = mode
	return m.scheduleErr
}
func (m *mockHoliday) Cancel(ctx context.Context, installationID string) error {
	m.cancelCalls++
	m.lastInstallation = installationID
	return m.cancelErr
}

type mockMonitoring struct {
	devices []models.Device
	err     error
}

func (m *mockMonitoring) Devices(ctx context.Context) ([]models.Device, error) {
	return m.devices, m.err
}
func (m *mockMonitoring) Device(ctx context.Context, id string) (models.Device, error) {
	if m.err != nil {
		return models.Device{}, m.err
	}
	for _, d := range m.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return models.Device{}, service.ErrDeviceNotFound
}

type mockHistory struct {
	imported  int
	importErr error
	stats     []models.EnergyStatistic
	statsErr  error

	lastInstallation string
	lastRoom         string
	lastFrom         time.Time
	lastTo           time.Time
	lastStatisticID  string
}

func (m *mockHistory) ImportRoomEnergy(ctx context.Context, installationID, roomID string, from, to time.Time) (int, error) {
	m.lastInstallation = installationID
	m.lastRoom = roomID
	m.lastFrom = from
	m.lastTo = to
	return m.imported, m.importErr
}
func (m *mockHistory) Statistics(ctx context.Context, statisticID string, from, to time.Time) ([]models.EnergyStatistic, error) {
	m.lastStatisticID = statisticID
	m.lastFrom = from
	m.lastTo = to
	return m.stats, m.statsErr
}

type mockEventLog struct {
	resp     []models.BridgeEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.BridgeEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
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
