package service

import (
	"context"
	"errors"

	"fenix_bridge/internal/models"
)

var ErrDeviceNotFound = errors.New("device not found")

// snapshotSource is the read side of the polling coordinator.
type snapshotSource interface {
	Devices() []models.Device
	Device(id string) (models.Device, bool)
}

type MonitoringService struct {
	coord snapshotSource
}

func NewMonitoringService(coord snapshotSource) *MonitoringService {
	return &MonitoringService{coord: coord}
}

// Devices returns the latest polled snapshot. An empty slice before the
// first successful poll is not an error.
func (s *MonitoringService) Devices(ctx context.Context) ([]models.Device, error) {
	return s.coord.Devices(), nil
}

// Device returns a single thermostat from the snapshot.
func (s *MonitoringService) Device(ctx context.Context, id string) (models.Device, error) {
	d, ok := s.coord.Device(id)
	if !ok {
		return models.Device{}, ErrDeviceNotFound
	}
	return d, nil
}
