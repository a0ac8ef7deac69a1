package models

import "time"

// Raw Hs values reported by the vendor property document.
const (
	HvacActionIdle    = 0
	HvacActionHeating = 1
	HvacActionOff     = 2
)

// Raw Cm preset values accepted by the vendor API.
const (
	PresetOff     = 0
	PresetManual  = 1
	PresetProgram = 2
	PresetDefrost = 4
	PresetBoost   = 5
	PresetManual2 = 6 // alias the thermostat firmware reports for manual
)

// ValidPresetModes is the closed set of Cm values a command may carry.
var ValidPresetModes = map[int]struct{}{
	PresetOff:     {},
	PresetManual:  {},
	PresetProgram: {},
	PresetDefrost: {},
	PresetBoost:   {},
	PresetManual2: {},
}

// Device is one thermostat's snapshot produced by a polling cycle.
// Optional fields are pointers: a nil means the vendor did not report
// the value (or the per-device property fetch failed that cycle).
type Device struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             string     `json:"type,omitempty"`
	Software         string     `json:"software,omitempty"`
	InstallationID   string     `json:"installation_id"`
	InstallationName string     `json:"installation,omitempty"`
	RoomID           string     `json:"room_id,omitempty"`
	RoomName         string     `json:"room"`
	TargetTempC      *float64   `json:"target_temp,omitempty"`
	CurrentTempC     *float64   `json:"current_temp,omitempty"`
	FloorTempC       *float64   `json:"floor_temp,omitempty"`
	HvacAction       *int       `json:"hvac_action,omitempty"`
	PresetMode       *int       `json:"preset_mode,omitempty"`
	HolidayMode      *int       `json:"holiday_mode,omitempty"`
	HolidayStart     *time.Time `json:"holiday_start,omitempty"`
	HolidayEnd       *time.Time `json:"holiday_end,omitempty"`
	FetchedAt        time.Time  `json:"fetched_at"`
}

// IsHeating reports whether the thermostat says it is actively heating.
func (d Device) IsHeating() bool {
	return d.HvacAction != nil && *d.HvacAction == HvacActionHeating
}
