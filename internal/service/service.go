package service

import (
	"context"
	"time"

	"fenix_bridge/internal/coordinator"
	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/models"
	"fenix_bridge/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Climate exposes thermostat write operations.
type Climate interface {
	SetPresetMode(ctx context.Context, deviceID, mode string) error
	SetTemperature(ctx context.Context, deviceID string, tempC float64) error
}

// Holiday manages installation-wide holiday control jobs.
type Holiday interface {
	Schedule(ctx context.Context, installationID string, start, end time.Time, mode string) error
	Cancel(ctx context.Context, installationID string) error
}

// Monitoring exposes the read-only device snapshot.
type Monitoring interface {
	Devices(ctx context.Context) ([]models.Device, error)
	Device(ctx context.Context, id string) (models.Device, error)
}

// History imports historical room energy consumption into local statistics.
type History interface {
	ImportRoomEnergy(ctx context.Context, installationID, roomID string, from, to time.Time) (int, error)
	Statistics(ctx context.Context, statisticID string, from, to time.Time) ([]models.EnergyStatistic, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.BridgeEvent, error)
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "LOGIN", "REFRESH", "COMMAND", "HOLIDAY", "POLL_ERROR", "IMPORT"
}

type Service struct {
	Climate
	Holiday
	Monitoring
	History
	EventLog
	Authorization
}

// NewService wires the repository layer, the vendor client and the polling
// coordinator into the concrete sub-services.
func NewService(repos *repository.Repository, client *fenix.Client, coord *coordinator.Coordinator, signingKey string) *Service {
	return &Service{
		Climate:       NewClimateService(client, coord, repos.EventRepo),
		Holiday:       NewHolidayService(client, coord, repos.EventRepo),
		Monitoring:    NewMonitoringService(coord),
		History:       NewHistoryService(client, repos.Statistics, repos.EventRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
