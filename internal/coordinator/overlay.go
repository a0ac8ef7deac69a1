package coordinator

import (
	"time"

	"fenix_bridge/internal/models"
)

// overlayTTL bounds how long an optimistic prediction may shadow polled
// truth. If the server silently rejected the command, the device reverts
// to the reported state once the entry expires.
const overlayTTL = 10 * time.Second

type overlayEntry struct {
	presetMode int
	hvacAction int
	issuedAt   time.Time
}

// Overlay records predicted device state right after a command is issued
// and overlays it onto poll results until the entry expires.
//
// Not safe for multi-writer concurrent use: it is only touched from the
// coordinator's serialized update and command paths.
type Overlay struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]overlayEntry
}

// NewOverlay returns an overlay with the default TTL.
func NewOverlay() *Overlay {
	return &Overlay{
		ttl:     overlayTTL,
		now:     time.Now,
		entries: make(map[string]overlayEntry),
	}
}

// predictedAction guesses the Hs value a preset change will produce. The
// off preset turns the device off; anything else is assumed idle until
// real telemetry arrives. This is a known approximation: a device that is
// actually heating shows idle until the next fetch corrects it.
func predictedAction(presetMode int) int {
	if presetMode == models.PresetOff {
		return models.HvacActionOff
	}
	return models.HvacActionIdle
}

// Set records the prediction for a just-issued preset command.
func (o *Overlay) Set(deviceID string, presetMode int) {
	o.entries[deviceID] = overlayEntry{
		presetMode: presetMode,
		hvacAction: predictedAction(presetMode),
		issuedAt:   o.now(),
	}
}

// ApplyTo overwrites preset/hvac fields of devices that have a live
// entry and prunes expired entries as a side effect.
func (o *Overlay) ApplyTo(devices []models.Device) {
	now := o.now()
	for id, e := range o.entries {
		if now.Sub(e.issuedAt) > o.ttl {
			delete(o.entries, id)
		}
	}
	if len(o.entries) == 0 {
		return
	}
	for i := range devices {
		e, ok := o.entries[devices[i].ID]
		if !ok {
			continue
		}
		preset, action := e.presetMode, e.hvacAction
		devices[i].PresetMode = &preset
		devices[i].HvacAction = &action
	}
}
