package coordinator

import (
	"testing"
	"time"

	"fenix_bridge/internal/models"
)

func intp(v int) *int { return &v }

func TestOverlay_ShadowsPolledStateUntilTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	o := NewOverlay()
	o.now = func() time.Time { return now }

	o.Set("dev-1", models.PresetBoost)

	devices := []models.Device{
		{ID: "dev-1", PresetMode: intp(models.PresetProgram), HvacAction: intp(models.HvacActionHeating)},
		{ID: "dev-2", PresetMode: intp(models.PresetProgram)},
	}

	// inside the TTL the prediction wins over stale poll data
	now = now.Add(5 * time.Second)
	o.ApplyTo(devices)
	if *devices[0].PresetMode != models.PresetBoost {
		t.Fatalf("prediction not applied: %+v", devices[0])
	}
	if *devices[0].HvacAction != models.HvacActionIdle {
		t.Fatalf("predicted action should be idle: %+v", devices[0])
	}
	if *devices[1].PresetMode != models.PresetProgram {
		t.Fatalf("unrelated device touched: %+v", devices[1])
	}

	// after the TTL the entry is pruned and polled truth returns
	fresh := []models.Device{
		{ID: "dev-1", PresetMode: intp(models.PresetProgram), HvacAction: intp(models.HvacActionHeating)},
	}
	now = now.Add(overlayTTL)
	o.ApplyTo(fresh)
	if *fresh[0].PresetMode != models.PresetProgram {
		t.Fatalf("expired prediction still applied: %+v", fresh[0])
	}
	if len(o.entries) != 0 {
		t.Fatalf("expired entries must be pruned: %+v", o.entries)
	}
}

func TestOverlay_OffPresetPredictsOff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	o := NewOverlay()
	o.now = func() time.Time { return now }

	o.Set("dev-1", models.PresetOff)

	devices := []models.Device{{ID: "dev-1", HvacAction: intp(models.HvacActionHeating)}}
	o.ApplyTo(devices)
	if *devices[0].HvacAction != models.HvacActionOff {
		t.Fatalf("off preset must predict hvac off: %+v", devices[0])
	}
}

func TestOverlay_NewerCommandReplacesOlder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	o := NewOverlay()
	o.now = func() time.Time { return now }

	o.Set("dev-1", models.PresetBoost)
	now = now.Add(2 * time.Second)
	o.Set("dev-1", models.PresetOff)

	devices := []models.Device{{ID: "dev-1"}}
	o.ApplyTo(devices)
	if *devices[0].PresetMode != models.PresetOff {
		t.Fatalf("latest command must win: %+v", devices[0])
	}
}
