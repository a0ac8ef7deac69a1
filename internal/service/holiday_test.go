package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fenix_bridge/internal/fenix"
)

type fakeHolidayWriter struct {
	scheduleCalls []struct {
		installationID string
		start, end     time.Time
		mode           int
	}
	cancelCalls []string
	err         error
}

func (f *fakeHolidayWriter) SetHolidaySchedule(ctx context.Context, installationID string, start, end time.Time, mode int) error {
	f.scheduleCalls = append(f.scheduleCalls, struct {
		installationID string
		start, end     time.Time
		mode           int
	}{installationID, start, end, mode})
	return f.err
}

func (f *fakeHolidayWriter) CancelHolidaySchedule(ctx context.Context, installationID string) error {
	f.cancelCalls = append(f.cancelCalls, installationID)
	return f.err
}

type countRefresher struct{ calls int }

func (r *countRefresher) RequestRefresh() { r.calls++ }

func TestHolidaySchedule_Success(t *testing.T) {
	t.Parallel()

	client := &fakeHolidayWriter{}
	coord := &countRefresher{}
	events := &captureEventRepo{}
	svc := NewHolidayService(client, coord, events)

	start := time.Now().UTC().Add(24 * time.Hour)
	end := start.Add(7 * 24 * time.Hour)

	if err := svc.Schedule(context.Background(), "inst-1", start, end, "reduce"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(client.scheduleCalls) != 1 {
		t.Fatalf("want 1 vendor call, got %d", len(client.scheduleCalls))
	}
	if client.scheduleCalls[0].mode != fenix.HolidayModeReduce {
		t.Fatalf("unexpected mode: %d", client.scheduleCalls[0].mode)
	}
	if coord.calls != 1 {
		t.Fatalf("want 1 refresh request, got %d", coord.calls)
	}
	if len(events.appended) != 1 || events.appended[0].Type != "HOLIDAY" {
		t.Fatalf("unexpected events: %+v", events.appended)
	}
}

func TestHolidaySchedule_Validation(t *testing.T) {
	t.Parallel()

	client := &fakeHolidayWriter{}
	svc := NewHolidayService(client, &countRefresher{}, &captureEventRepo{})

	future := time.Now().UTC().Add(24 * time.Hour)
	past := time.Now().UTC().Add(-24 * time.Hour)

	cases := []struct {
		name           string
		installationID string
		start, end     time.Time
		mode           string
	}{
		{"empty installation", "", future, future.Add(time.Hour), "off"},
		{"unknown mode", "inst-1", future, future.Add(time.Hour), "party"},
		{"zero times", "inst-1", time.Time{}, time.Time{}, "off"},
		{"start after end", "inst-1", future.Add(time.Hour), future, "off"},
		{"range in the past", "inst-1", past.Add(-time.Hour), past, "off"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Schedule(context.Background(), tc.installationID, tc.start, tc.end, tc.mode)
			var verr *fenix.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
		})
	}
	if len(client.scheduleCalls) != 0 {
		t.Fatalf("vendor must not be called: %+v", client.scheduleCalls)
	}
}

func TestHolidayCancel(t *testing.T) {
	t.Parallel()

	client := &fakeHolidayWriter{}
	coord := &countRefresher{}
	events := &captureEventRepo{}
	svc := NewHolidayService(client, coord, events)

	if err := svc.Cancel(context.Background(), "inst-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(client.cancelCalls) != 1 || client.cancelCalls[0] != "inst-1" {
		t.Fatalf("unexpected vendor calls: %+v", client.cancelCalls)
	}
	if coord.calls != 1 {
		t.Fatalf("want 1 refresh request, got %d", coord.calls)
	}
	if len(events.appended) != 1 || events.appended[0].Type != "HOLIDAY" {
		t.Fatalf("unexpected events: %+v", events.appended)
	}
}

func TestHolidayCancel_VendorError(t *testing.T) {
	t.Parallel()

	vendorErr := errors.New("cloud down")
	client := &fakeHolidayWriter{err: vendorErr}
	coord := &countRefresher{}
	events := &captureEventRepo{}
	svc := NewHolidayService(client, coord, events)

	if err := svc.Cancel(context.Background(), "inst-1"); !errors.Is(err, vendorErr) {
		t.Fatalf("want vendor error, got %v", err)
	}
	if coord.calls != 0 || len(events.appended) != 0 {
		t.Fatalf("failed cancel must not refresh or log")
	}
}
