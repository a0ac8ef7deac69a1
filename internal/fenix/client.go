package fenix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fenix_bridge/internal/logger"
	"fenix_bridge/internal/models"

	"golang.org/x/sync/errgroup"
)

// propertyFetchLimit caps concurrent per-device property requests within
// one listing so the vendor API is not hammered.
const propertyFetchLimit = 5

// Holiday job modes accepted by the installation control endpoint.
const (
	HolidayModeNone    = 0
	HolidayModeOff     = 1
	HolidayModeReduce  = 2
	HolidayModeDefrost = 3
	HolidayModeSunday  = 4
)

// EnergyPeriod selects the aggregation of a historical energy read.
type EnergyPeriod string

const (
	PeriodHour  EnergyPeriod = "Hour"
	PeriodDay   EnergyPeriod = "Day"
	PeriodMonth EnergyPeriod = "Month"
)

// Installation is one account installation with its room/device tree.
type Installation struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SubscriptionID string `json:"subscriptionId"`
	Rooms          []Room `json:"rooms"`
}

// Room groups the thermostats of one room.
type Room struct {
	ID      string       `json:"Id_room"`
	Name    string       `json:"Rn"`
	Devices []RoomDevice `json:"devices"`
}

// RoomDevice is the inventory stub of one thermostat.
type RoomDevice struct {
	ID   string `json:"Id_deviceId"`
	Name string `json:"Dn"`
}

// Client is the authenticated façade over the vendor REST API. Every call
// runs Session.EnsureValid first and carries the configured timeout.
type Client struct {
	session *Session
	cfg     Config
	http    *http.Client
	log     *logger.Logger

	mu             sync.Mutex
	subscriptionID string // captured from the installation listing
}

// NewClient wires a client to an authenticated session.
func NewClient(session *Session, log *logger.Logger) *Client {
	cfg := session.cfg
	return &Client{
		session: session,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// SubscriptionID returns the subscription captured from the most recent
// installation listing ("" before the first successful listing).
func (c *Client) SubscriptionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionID
}

// Installations lists the installations the account administers.
func (c *Client) Installations(ctx context.Context) ([]Installation, error) {
	sub, err := c.session.SubjectID(ctx)
	if err != nil {
		return nil, err
	}
	var out []Installation
	op := "installations"
	err = c.getJSON(ctx, c.cfg.APIBase+"/businessmodule/v1/installations/admins/"+url.PathEscape(sub), op, &out)
	if err != nil {
		return nil, err
	}
	for _, inst := range out {
		if inst.SubscriptionID != "" {
			c.mu.Lock()
			c.subscriptionID = inst.SubscriptionID
			c.mu.Unlock()
			break
		}
	}
	return out, nil
}

// DeviceProperties fetches the configuration content document of one device.
func (c *Client) DeviceProperties(ctx context.Context, deviceID string) (*PropertyDocument, error) {
	var doc PropertyDocument
	op := "device properties " + deviceID
	u := fmt.Sprintf("%s/iotmanagement/v1/configuration/%s/%s/v1/content/",
		c.cfg.APIBase, url.PathEscape(deviceID), url.PathEscape(deviceID))
	if err := c.getJSON(ctx, u, op, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Devices expands installation → room → device and decorates each record
// with its property document. Property fetches run concurrently, capped
// at propertyFetchLimit; a failed fetch degrades that one record (fields
// stay absent) instead of failing the listing.
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	installations, err := c.Installations(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var devices []models.Device
	for _, inst := range installations {
		for _, room := range inst.Rooms {
			for _, dev := range room.Devices {
				name := dev.Name
				if name == "" {
					name = "Fenix TFT"
				}
				devices = append(devices, models.Device{
					ID:               dev.ID,
					Name:             name,
					InstallationID:   inst.ID,
					InstallationName: inst.Name,
					RoomID:           room.ID,
					RoomName:         room.Name,
					FetchedAt:        now,
				})
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(propertyFetchLimit)
	for i := range devices {
		g.Go(func() error {
			doc, err := c.DeviceProperties(gctx, devices[i].ID)
			if err != nil {
				// Partial data beats no data: keep the record, log the gap.
				c.log.Errorw("device_properties_fetch_failed", "device", devices[i].ID, "err", err)
				return nil
			}
			doc.ApplyTo(&devices[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return devices, nil
}

// twin property command bodies ride the generic replace endpoint.
type twinReplaceRequest struct {
	DeviceID   string         `json:"Id_deviceId"`
	Properties map[string]any `json:"properties"`
}

// SetPresetMode writes a new Cm value for the device.
func (c *Client) SetPresetMode(ctx context.Context, deviceID string, mode int) error {
	if deviceID == "" {
		return &ValidationError{Msg: "device id is empty"}
	}
	if _, ok := models.ValidPresetModes[mode]; !ok {
		return &ValidationError{Msg: fmt.Sprintf("invalid preset mode %d", mode)}
	}
	body := twinReplaceRequest{
		DeviceID:   deviceID,
		Properties: map[string]any{"Cm": map[string]any{"value": mode}},
	}
	return c.putJSON(ctx, c.cfg.APIBase+"/iotmanagement/v1/devices/twin/properties/config/replace",
		"set preset mode", body)
}

// Temperature limits accepted for a manual setpoint, in Celsius.
const (
	MinTargetTempC = 5.0
	MaxTargetTempC = 35.0
)

// SetTargetTemperature writes a new manual setpoint for the device.
func (c *Client) SetTargetTemperature(ctx context.Context, deviceID string, tempC float64) error {
	if deviceID == "" {
		return &ValidationError{Msg: "device id is empty"}
	}
	if tempC < MinTargetTempC || tempC > MaxTargetTempC {
		return &ValidationError{Msg: fmt.Sprintf("target %.1f outside %.0f..%.0f C", tempC, MinTargetTempC, MaxTargetTempC)}
	}
	body := twinReplaceRequest{
		DeviceID: deviceID,
		Properties: map[string]any{
			"Ma": map[string]any{"value": EncodeTempC(tempC), "divFactor": defaultDivFactor},
		},
	}
	return c.putJSON(ctx, c.cfg.APIBase+"/iotmanagement/v1/devices/twin/properties/config/replace",
		"set target temperature", body)
}

// holidayJobRequest schedules or cancels an installation-wide holiday.
type holidayJobRequest struct {
	InstallationID string `json:"installationId"`
	Mode           int    `json:"jobType"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
}

// SetHolidaySchedule writes an installation control job for the window.
func (c *Client) SetHolidaySchedule(ctx context.Context, installationID string, start, end time.Time, mode int) error {
	if installationID == "" {
		return &ValidationError{Msg: "installation id is empty"}
	}
	if !end.After(start) {
		return &ValidationError{Msg: "holiday end date must be after start date"}
	}
	if mode < HolidayModeOff || mode > HolidayModeSunday {
		return &ValidationError{Msg: fmt.Sprintf("invalid holiday mode %d", mode)}
	}
	body := holidayJobRequest{
		InstallationID: installationID,
		Mode:           mode,
		StartDate:      start.Local().Format(holidayTimeLayout),
		EndDate:        end.Local().Format(holidayTimeLayout),
	}
	return c.putJSON(ctx, c.cfg.APIBase+"/businessmodule/v1/installationcontroljob", "set holiday schedule", body)
}

// CancelHolidaySchedule clears the holiday job by writing the epoch window.
func (c *Client) CancelHolidaySchedule(ctx context.Context, installationID string) error {
	if installationID == "" {
		return &ValidationError{Msg: "installation id is empty"}
	}
	body := holidayJobRequest{
		InstallationID: installationID,
		Mode:           HolidayModeNone,
		StartDate:      holidayEpochDate,
		EndDate:        holidayEpochDate,
	}
	return c.putJSON(ctx, c.cfg.APIBase+"/businessmodule/v1/installationcontroljob", "cancel holiday schedule", body)
}

// RoomEnergyHistory reads aggregated consumption for a room. A 204 is a
// valid empty result, not an error.
func (c *Client) RoomEnergyHistory(ctx context.Context, installationID, roomID, subscriptionID string, start, end time.Time, period EnergyPeriod) ([]models.EnergyMetric, error) {
	switch {
	case installationID == "" || roomID == "":
		return nil, &ValidationError{Msg: "installation and room ids are required"}
	case subscriptionID == "":
		return nil, &ValidationError{Msg: "subscription id is required"}
	case !end.After(start):
		return nil, &ValidationError{Msg: "energy range end must be after start"}
	}
	switch period {
	case PeriodHour, PeriodDay, PeriodMonth:
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid aggregation period %q", period)}
	}

	q := url.Values{
		"subscriptionId": {subscriptionID},
		"startDate":      {start.UTC().Format(time.RFC3339)},
		"endDate":        {end.UTC().Format(time.RFC3339)},
		"aggregation":    {string(period)},
	}
	u := fmt.Sprintf("%s/dataprocessingmodule/v1/consumption/installations/%s/rooms/%s/metrics?%s",
		c.cfg.APIBase, url.PathEscape(installationID), url.PathEscape(roomID), q.Encode())

	var out []models.EnergyMetric
	if err := c.getJSON(ctx, u, "room energy history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- authenticated HTTP plumbing ----

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + c.session.AccessToken(),
		"ocp-apim-subscription-key": c.cfg.SubscriptionKey,
		"Accept":                    "application/json",
	}
}

// getJSON runs an authenticated GET and decodes the body into v. A 204
// leaves v untouched.
func (c *Client) getJSON(ctx context.Context, rawURL, op string, v any) error {
	if err := c.session.EnsureValid(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, val := range c.headers() {
		req.Header.Set(k, val)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return &ProtocolError{Op: op, Err: fmt.Errorf("decode body: %w", err)}
		}
		return nil
	case http.StatusNoContent:
		return nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return protocolErr(op, resp.StatusCode)
	}
}

// putJSON runs an authenticated PUT with a JSON body, expecting 200 or 204.
func (c *Client) putJSON(ctx context.Context, rawURL, op string, body any) error {
	if err := c.session.EnsureValid(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, val := range c.headers() {
		req.Header.Set(k, val)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return protocolErr(op, resp.StatusCode)
	}
	return nil
}

// HolidayModeName maps a job mode to its service-facing name.
func HolidayModeName(mode int) string {
	switch mode {
	case HolidayModeOff:
		return "off"
	case HolidayModeReduce:
		return "reduce"
	case HolidayModeDefrost:
		return "defrost"
	case HolidayModeSunday:
		return "sunday"
	default:
		return "none"
	}
}

// HolidayModeCode is the inverse of HolidayModeName; ok is false for an
// unknown name.
func HolidayModeCode(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "off":
		return HolidayModeOff, true
	case "reduce":
		return HolidayModeReduce, true
	case "defrost":
		return HolidayModeDefrost, true
	case "sunday":
		return HolidayModeSunday, true
	default:
		return 0, false
	}
}
