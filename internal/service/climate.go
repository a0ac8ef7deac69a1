package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/models"
	"fenix_bridge/internal/repository"
)

// climateWriter is the slice of the vendor client the climate service needs.
type climateWriter interface {
	SetPresetMode(ctx context.Context, deviceID string, mode int) error
	SetTargetTemperature(ctx context.Context, deviceID string, tempC float64) error
}

// snapshotPatcher is the slice of the polling coordinator the climate
// service needs: read the current snapshot, overlay a prediction, and
// ask for an early poll.
type snapshotPatcher interface {
	Device(id string) (models.Device, bool)
	UpdatePresetMode(deviceID string, presetMode int)
	RequestRefresh()
}

// presetCodes maps the API-facing mode names onto vendor Cm values.
var presetCodes = map[string]int{
	"off":     models.PresetOff,
	"manual":  models.PresetManual,
	"program": models.PresetProgram,
	"defrost": models.PresetDefrost,
	"boost":   models.PresetBoost,
}

// PresetModeName returns the API-facing name for a vendor Cm value.
func PresetModeName(code int) string {
	switch code {
	case models.PresetOff:
		return "off"
	case models.PresetManual, models.PresetManual2:
		return "manual"
	case models.PresetProgram:
		return "program"
	case models.PresetDefrost:
		return "defrost"
	case models.PresetBoost:
		return "boost"
	}
	return ""
}

func presetModeNames() []string {
	names := make([]string, 0, len(presetCodes))
	for n := range presetCodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type ClimateService struct {
	client climateWriter
	coord  snapshotPatcher
	events repository.EventRepo
}

func NewClimateService(client climateWriter, coord snapshotPatcher, events repository.EventRepo) *ClimateService {
	return &ClimateService{client: client, coord: coord, events: events}
}

// SetPresetMode validates the command, writes it to the vendor cloud and
// patches the local snapshot so readers see the new mode before the next
// poll confirms it.
func (s *ClimateService) SetPresetMode(ctx context.Context, deviceID, mode string) error {
	code, ok := presetCodes[strings.ToLower(strings.TrimSpace(mode))]
	if !ok {
		return &fenix.ValidationError{
			Msg: fmt.Sprintf("unknown preset mode %q, valid: %s", mode, strings.Join(presetModeNames(), ", ")),
		}
	}
	if _, ok := s.coord.Device(deviceID); !ok {
		return &fenix.ValidationError{Msg: fmt.Sprintf("unknown device %q", deviceID)}
	}

	if err := s.client.SetPresetMode(ctx, deviceID, code); err != nil {
		return err
	}

	s.coord.UpdatePresetMode(deviceID, code)
	s.coord.RequestRefresh()

	return s.events.Append(ctx, models.BridgeEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        "COMMAND",
		Description: "Preset mode set to " + mode,
		Metadata:    map[string]any{"device_id": deviceID, "preset_mode": code},
	})
}

// SetTemperature validates the target and writes it to the vendor cloud.
// Target changes carry no overlay prediction: the thermostat applies them
// asynchronously and the early poll picks up the confirmed value.
func (s *ClimateService) SetTemperature(ctx context.Context, deviceID string, tempC float64) error {
	if tempC < fenix.MinTargetTempC || tempC > fenix.MaxTargetTempC {
		return &fenix.ValidationError{
			Msg: fmt.Sprintf("target %.1f outside allowed range %.0f..%.0f", tempC, fenix.MinTargetTempC, fenix.MaxTargetTempC),
		}
	}
	if _, ok := s.coord.Device(deviceID); !ok {
		return &fenix.ValidationError{Msg: fmt.Sprintf("unknown device %q", deviceID)}
	}

	if err := s.client.SetTargetTemperature(ctx, deviceID, tempC); err != nil {
		return err
	}

	s.coord.RequestRefresh()

	return s.events.Append(ctx, models.BridgeEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        "COMMAND",
		Description: fmt.Sprintf("Target temperature set to %.1f", tempC),
		Metadata:    map[string]any{"device_id": deviceID, "target_temp": tempC},
	})
}
