package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fenix_bridge/internal/logger"
	"fenix_bridge/internal/models"

	"golang.org/x/sync/singleflight"
)

// Polling cadence defaults. The coordinator polls fast during the startup
// grace period and while any device is heating, slow otherwise, and backs
// off entirely after a failed fetch.
const (
	DefaultFastInterval = 30 * time.Second
	DefaultSlowInterval = 2 * time.Minute
	DefaultStartupGrace = 10 * time.Minute
	DefaultBackoff      = 5 * time.Minute
)

// DeviceLister is the inventory accessor; fenix.Client satisfies it.
type DeviceLister interface {
	Devices(ctx context.Context) ([]models.Device, error)
}

// Config tunes the adaptive polling cadence. Zero fields use defaults.
type Config struct {
	FastInterval time.Duration
	SlowInterval time.Duration
	StartupGrace time.Duration
	Backoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.FastInterval <= 0 {
		c.FastInterval = DefaultFastInterval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = DefaultSlowInterval
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = DefaultStartupGrace
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	return c
}

// Coordinator maintains the authoritative device snapshot, refreshing it
// on an adaptive timer or on demand. The snapshot is published atomically:
// readers get a copy and never observe a partially built list. A failed
// cycle leaves the last-known-good snapshot visible.
type Coordinator struct {
	lister DeviceLister
	log    *logger.Logger
	cfg    Config
	now    func() time.Time // injected in tests

	mu           sync.Mutex
	devices      []models.Device
	overlay      *Overlay
	interval     time.Duration
	startupTime  time.Time
	lastSuccess  time.Time
	backoffUntil time.Time

	group singleflight.Group
	kick  chan struct{}
}

// New builds a coordinator; Run (or Refresh) must be called to populate it.
func New(lister DeviceLister, cfg Config, log *logger.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		lister:      lister,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
		overlay:     NewOverlay(),
		interval:    cfg.FastInterval,
		startupTime: time.Now(),
		kick:        make(chan struct{}, 1),
	}
}

// Devices returns a copy of the published snapshot.
func (c *Coordinator) Devices() []models.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Device returns the snapshot record for one id.
func (c *Coordinator) Device(id string) (models.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.Device{}, false
}

// Interval returns the currently scheduled polling interval.
func (c *Coordinator) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Refresh runs one polling cycle: fetch the inventory, overlay optimistic
// entries, recompute the interval and publish the new snapshot. Cycles
// triggered while one is already in flight join it instead of queuing a
// duplicate fetch; an in-flight cycle is never cancelled by a newer
// request.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		devices, err := c.lister.Devices(ctx)
		now := c.now()
		if err != nil {
			c.mu.Lock()
			c.backoffUntil = now.Add(c.cfg.Backoff)
			c.interval = c.cfg.Backoff
			c.mu.Unlock()
			return nil, fmt.Errorf("refresh devices: %w", err)
		}

		c.mu.Lock()
		c.overlay.ApplyTo(devices)
		c.devices = devices
		c.lastSuccess = now
		c.interval = c.computeInterval(now, devices)
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// computeInterval applies the adaptive policy, first match wins.
// Callers hold c.mu.
func (c *Coordinator) computeInterval(now time.Time, devices []models.Device) time.Duration {
	if now.Before(c.backoffUntil) {
		return c.cfg.Backoff
	}
	if now.Sub(c.startupTime) < c.cfg.StartupGrace {
		return c.cfg.FastInterval
	}
	for _, d := range devices {
		if d.IsHeating() {
			return c.cfg.FastInterval
		}
	}
	return c.cfg.SlowInterval
}

// RequestRefresh triggers an out-of-band cycle without waiting for the
// timer. Requests arriving while one is pending collapse into it.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// UpdatePresetMode records an optimistic prediction after a successful
// command and patches the published snapshot in place so synchronous
// readers see it before the next cycle lands.
func (c *Coordinator) UpdatePresetMode(deviceID string, presetMode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlay.Set(deviceID, presetMode)
	for i := range c.devices {
		if c.devices[i].ID != deviceID {
			continue
		}
		preset, action := presetMode, predictedAction(presetMode)
		c.devices[i].PresetMode = &preset
		c.devices[i].HvacAction = &action
		return
	}
}

// Run drives the timer loop until ctx is cancelled. Out-of-band requests
// from RequestRefresh fire immediately; every cycle reschedules the timer
// with the freshly computed interval.
func (c *Coordinator) Run(ctx context.Context) {
	// populate the snapshot right away instead of waiting a full interval
	if err := c.Refresh(ctx); err != nil {
		c.log.Errorw("poll_cycle_failed", "err", err, "next_interval", c.Interval())
	}

	t := time.NewTimer(c.Interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		case <-t.C:
		}

		if err := c.Refresh(ctx); err != nil {
			c.log.Errorw("poll_cycle_failed", "err", err, "next_interval", c.Interval())
		}
		t.Reset(c.Interval())
	}
}
