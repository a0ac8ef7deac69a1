package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/models"
	"fenix_bridge/internal/repository"
)

// holidayWriter is the slice of the vendor client the holiday service needs.
type holidayWriter interface {
	SetHolidaySchedule(ctx context.Context, installationID string, start, end time.Time, mode int) error
	CancelHolidaySchedule(ctx context.Context, installationID string) error
}

type refresher interface {
	RequestRefresh()
}

type HolidayService struct {
	client holidayWriter
	coord  refresher
	events repository.EventRepo
}

func NewHolidayService(client holidayWriter, coord refresher, events repository.EventRepo) *HolidayService {
	return &HolidayService{client: client, coord: coord, events: events}
}

// Schedule creates an installation-wide holiday job. The range must lie in
// the future and the mode must be one of off, reduce, defrost, sunday.
func (s *HolidayService) Schedule(ctx context.Context, installationID string, start, end time.Time, mode string) error {
	if installationID == "" {
		return &fenix.ValidationError{Msg: "installation id is required"}
	}
	code, ok := fenix.HolidayModeCode(strings.ToLower(strings.TrimSpace(mode)))
	if !ok {
		return &fenix.ValidationError{Msg: fmt.Sprintf("unknown holiday mode %q, valid: off, reduce, defrost, sunday", mode)}
	}
	if start.IsZero() || end.IsZero() {
		return &fenix.ValidationError{Msg: "start and end are required"}
	}
	if !start.Before(end) {
		return &fenix.ValidationError{Msg: "start must be before end"}
	}
	if end.Before(time.Now().UTC()) {
		return &fenix.ValidationError{Msg: "end must be in the future"}
	}

	if err := s.client.SetHolidaySchedule(ctx, installationID, start.UTC(), end.UTC(), code); err != nil {
		return err
	}

	s.coord.RequestRefresh()

	return s.events.Append(ctx, models.BridgeEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        "HOLIDAY",
		Description: "Holiday schedule set (" + mode + ")",
		Metadata: map[string]any{
			"installation_id": installationID,
			"mode":            code,
			"start":           start.UTC().Format(time.RFC3339),
			"end":             end.UTC().Format(time.RFC3339),
		},
	})
}

// Cancel removes any active holiday job from the installation.
func (s *HolidayService) Cancel(ctx context.Context, installationID string) error {
	if installationID == "" {
		return &fenix.ValidationError{Msg: "installation id is required"}
	}

	if err := s.client.CancelHolidaySchedule(ctx, installationID); err != nil {
		return err
	}

	s.coord.RequestRefresh()

	return s.events.Append(ctx, models.BridgeEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        "HOLIDAY",
		Description: "Holiday schedule cancelled",
		Metadata:    map[string]any{"installation_id": installationID},
	})
}
