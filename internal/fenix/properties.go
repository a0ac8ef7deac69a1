package fenix

import (
	"time"

	"fenix_bridge/internal/models"
)

// The vendor encodes temperatures as Fahrenheit multiplied by a divFactor
// (usually 10). Raw values travel as integers; the bridge keeps Celsius.
const defaultDivFactor = 10

// holidayTimeLayout is the local wall-clock format of H1/H2 entries.
// The vendor reports an epoch placeholder when no holiday is scheduled.
const (
	holidayTimeLayout = "2006-01-02T15:04:05"
	holidayEpochDate  = "1970-01-01T00:00:00"
)

// TempEntry is a temperature property: raw value plus divide factor.
type TempEntry struct {
	Value     *float64 `json:"value"`
	DivFactor float64  `json:"divFactor,omitempty"`
}

// Celsius decodes the entry, nil when the vendor omitted the value.
func (e *TempEntry) Celsius() *float64 {
	if e == nil || e.Value == nil {
		return nil
	}
	div := e.DivFactor
	if div == 0 {
		div = 1
	}
	f := *e.Value / div
	c := (f - 32.0) * 5.0 / 9.0
	return &c
}

// EncodeTempC converts Celsius into the raw Fahrenheit×divFactor integer
// the command endpoint expects.
func EncodeTempC(tempC float64) int {
	f := tempC*9.0/5.0 + 32.0
	raw := f * defaultDivFactor
	if raw >= 0 {
		return int(raw + 0.5)
	}
	return int(raw - 0.5)
}

// IntEntry is an enumeration property such as Hs or Cm.
type IntEntry struct {
	Value *int `json:"value"`
}

// StringEntry is a free-text property such as a firmware version.
type StringEntry struct {
	Value *string `json:"value"`
}

// PropertyDocument is the per-device configuration content document.
// Every field is optional; an absent or unknown entry decodes to nil
// instead of failing the whole document.
type PropertyDocument struct {
	Target       *TempEntry   `json:"Ma"`
	Ambient      *TempEntry   `json:"At"`
	Floor        *TempEntry   `json:"Ft"`
	HvacAction   *IntEntry    `json:"Hs"`
	PresetMode   *IntEntry    `json:"Cm"`
	HolidayMode  *IntEntry    `json:"Hm"`
	HolidayStart *StringEntry `json:"H1"`
	HolidayEnd   *StringEntry `json:"H2"`
	Software     *StringEntry `json:"Sv"`
	DeviceType   *StringEntry `json:"Dt"`
}

// ApplyTo copies the decoded document into a device record. Fields the
// document does not carry stay nil on the record.
func (p *PropertyDocument) ApplyTo(d *models.Device) {
	if p == nil {
		return
	}
	d.TargetTempC = p.Target.Celsius()
	d.CurrentTempC = p.Ambient.Celsius()
	d.FloorTempC = p.Floor.Celsius()
	if p.HvacAction != nil {
		d.HvacAction = p.HvacAction.Value
	}
	if p.PresetMode != nil {
		d.PresetMode = p.PresetMode.Value
	}
	if p.HolidayMode != nil {
		d.HolidayMode = p.HolidayMode.Value
	}
	if p.HolidayStart != nil {
		d.HolidayStart = parseHolidayTime(p.HolidayStart.Value)
	}
	if p.HolidayEnd != nil {
		d.HolidayEnd = parseHolidayTime(p.HolidayEnd.Value)
	}
	if p.Software != nil && p.Software.Value != nil {
		d.Software = *p.Software.Value
	}
	if p.DeviceType != nil && p.DeviceType.Value != nil {
		d.Type = *p.DeviceType.Value
	}
}

// parseHolidayTime turns an H1/H2 value into a local time, dropping the
// epoch placeholder and anything unparseable. Only the end date (H2) is
// reliable for schedule checks; the API rewrites H1 dynamically.
func parseHolidayTime(s *string) *time.Time {
	if s == nil || *s == "" || *s == holidayEpochDate {
		return nil
	}
	t, err := time.ParseInLocation(holidayTimeLayout, *s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}
