package repository

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"fenix_bridge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newStatsRepo(t *testing.T) (*StatisticsSQLite, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	repo := NewStatisticsSQLite(db)
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func TestStatisticsInsert_TransactionalUpsert(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatisticSQL)).
		WithArgs("room-1:energy", start, 120.0, 120.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertStatisticSQL)).
		WithArgs("room-1:energy", start.Add(time.Hour), 80.0, 200.0).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.Insert(ctx(t), []models.EnergyStatistic{
		{StatisticID: "room-1:energy", PeriodStart: start, PeriodWh: 120, CumulativeWh: 120},
		{StatisticID: "room-1:energy", PeriodStart: start.Add(time.Hour), PeriodWh: 80, CumulativeWh: 200},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestStatisticsInsert_RollbackOnFailure(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertStatisticSQL)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Insert(ctx(t), []models.EnergyStatistic{
		{StatisticID: "room-1:energy", PeriodStart: start, PeriodWh: 1, CumulativeWh: 1},
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestStatisticsInsert_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	repo, _, cleanup := newStatsRepo(t)
	defer cleanup()

	if err := repo.Insert(ctx(t), nil); err != nil {
		t.Fatalf("Insert nil: %v", err)
	}
}

func TestStatisticsLastSum(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"cumulative_wh"}).AddRow(345.5)
	mock.ExpectQuery(regexp.QuoteMeta(selectLastSumSQL)).
		WithArgs("room-1:energy").
		WillReturnRows(rows)

	sum, err := repo.LastSum(ctx(t), "room-1:energy")
	if err != nil {
		t.Fatalf("LastSum: %v", err)
	}
	if sum != 345.5 {
		t.Fatalf("want 345.5, got %v", sum)
	}
}

func TestStatisticsLastSum_NoRowsIsZero(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectLastSumSQL)).
		WithArgs("room-9:energy").
		WillReturnRows(sqlmock.NewRows([]string{"cumulative_wh"}))

	sum, err := repo.LastSum(ctx(t), "room-9:energy")
	if err != nil {
		t.Fatalf("LastSum: %v", err)
	}
	if sum != 0 {
		t.Fatalf("want 0, got %v", sum)
	}
}

func TestStatisticsFirstPeriodStart(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"period_start"}).AddRow(start)
	mock.ExpectQuery(regexp.QuoteMeta(selectFirstStartSQL)).
		WithArgs("room-1:energy").
		WillReturnRows(rows)

	got, err := repo.FirstPeriodStart(ctx(t), "room-1:energy")
	if err != nil {
		t.Fatalf("FirstPeriodStart: %v", err)
	}
	if got == nil || !got.Equal(start) {
		t.Fatalf("want %v, got %v", start, got)
	}
}

func TestStatisticsFirstPeriodStart_NoRowsIsNil(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectFirstStartSQL)).
		WithArgs("room-9:energy").
		WillReturnRows(sqlmock.NewRows([]string{"period_start"}))

	got, err := repo.FirstPeriodStart(ctx(t), "room-9:energy")
	if err != nil {
		t.Fatalf("FirstPeriodStart: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}

func TestStatisticsList_WithBounds(t *testing.T) {
	t.Parallel()

	repo, mock, cleanup := newStatsRepo(t)
	defer cleanup()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	query := `SELECT statistic_id, period_start, period_wh, cumulative_wh FROM energy_statistics WHERE statistic_id = ? AND period_start >= ? AND period_start <= ? ORDER BY period_start ASC`
	rows := sqlmock.NewRows([]string{"statistic_id", "period_start", "period_wh", "cumulative_wh"}).
		AddRow("room-1:energy", from, 10.0, 10.0).
		AddRow("room-1:energy", from.Add(time.Hour), 15.0, 25.0)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("room-1:energy", from, to).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t), "room-1:energy", from, to)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[1].CumulativeWh != 25 {
		t.Fatalf("unexpected rows: %+v", got)
	}
}
