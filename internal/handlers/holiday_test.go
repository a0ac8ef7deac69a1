package handlers

import (
	"net/http"
	"testing"
	"time"

	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/service"
)

func TestScheduleHoliday(t *testing.T) {
	hol := &mockHoliday{}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Holiday: hol}
	r := newTestRouter(s)

	body := `{"mode":"reduce","start":"2026-09-01","end":"2026-09-14"}`
	w := doJSON(t, r, http.MethodPost, "/api/v1/installations/inst-1/holiday", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if hol.scheduleCalls != 1 || hol.lastInstallation != "inst-1" || hol.lastMode != "reduce" {
		t.Fatalf("unexpected service call: %+v", hol)
	}
	// date-only end must cover the whole final day
	wantEndDay := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if !hol.lastEnd.After(wantEndDay.Add(23 * time.Hour)) {
		t.Fatalf("end not extended to end of day: %v", hol.lastEnd)
	}
}

func TestScheduleHoliday_BadInput(t *testing.T) {
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Holiday: &mockHoliday{}}
	r := newTestRouter(s)

	for _, body := range []string{
		`{}`,
		`{"mode":"reduce","start":"soon","end":"2026-09-14"}`,
		`{"mode":"reduce","start":"2026-09-01","end":"later"}`,
	} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/installations/inst-1/holiday", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestScheduleHoliday_ServiceValidation(t *testing.T) {
	hol := &mockHoliday{scheduleErr: &fenix.ValidationError{Msg: "unknown holiday mode"}}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Holiday: hol}
	r := newTestRouter(s)

	body := `{"mode":"party","start":"2026-09-01","end":"2026-09-14"}`
	w := doJSON(t, r, http.MethodPost, "/api/v1/installations/inst-1/holiday", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestCancelHoliday(t *testing.T) {
	hol := &mockHoliday{}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Holiday: hol}
	r := newTestRouter(s)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/installations/inst-1/holiday", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if hol.cancelCalls != 1 || hol.lastInstallation != "inst-1" {
		t.Fatalf("unexpected service call: %+v", hol)
	}
}
