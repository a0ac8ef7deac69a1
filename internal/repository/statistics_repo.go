package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fenix_bridge/internal/models"
)

type StatisticsSQLite struct {
	db *sql.DB
}

func NewStatisticsSQLite(db *sql.DB) *StatisticsSQLite {
	return &StatisticsSQLite{db: db}
}

// Ensure implementation of StatisticsRepo interface at compile time.
var _ StatisticsRepo = (*StatisticsSQLite)(nil)

const (
	insertStatisticSQL = `
		INSERT INTO energy_statistics (statistic_id, period_start, period_wh, cumulative_wh)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(statistic_id, period_start) DO UPDATE SET
			period_wh=excluded.period_wh,
			cumulative_wh=excluded.cumulative_wh
	`

	selectLastSumSQL = `
		SELECT cumulative_wh FROM energy_statistics
		WHERE statistic_id = ? ORDER BY period_start DESC LIMIT 1
	`

	selectFirstStartSQL = `
		SELECT period_start FROM energy_statistics
		WHERE statistic_id = ? ORDER BY period_start ASC LIMIT 1
	`
)

// Insert upserts the given rows in one transaction so a partially
// imported chunk never lands.
func (r *StatisticsSQLite) Insert(ctx context.Context, rows []models.EnergyStatistic) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin statistics transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, insertStatisticSQL,
			row.StatisticID,
			row.PeriodStart.UTC(),
			row.PeriodWh,
			row.CumulativeWh,
		); err != nil {
			return fmt.Errorf("insert statistic %s@%s: %w", row.StatisticID, row.PeriodStart, err)
		}
	}
	return tx.Commit()
}

// LastSum returns the newest cumulative sum for the statistic, 0 when no
// rows exist yet.
func (r *StatisticsSQLite) LastSum(ctx context.Context, statisticID string) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx, selectLastSumSQL, statisticID).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// FirstPeriodStart returns the oldest imported period start, nil when the
// statistic has no rows.
func (r *StatisticsSQLite) FirstPeriodStart(ctx context.Context, statisticID string) (*time.Time, error) {
	var start time.Time
	err := r.db.QueryRowContext(ctx, selectFirstStartSQL, statisticID).Scan(&start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	startUTC := start.UTC()
	return &startUTC, nil
}

// List returns rows of one statistic inside [from, to], ordered ASC. Zero
// bounds are open.
func (r *StatisticsSQLite) List(ctx context.Context, statisticID string, from, to time.Time) ([]models.EnergyStatistic, error) {
	q := `SELECT statistic_id, period_start, period_wh, cumulative_wh FROM energy_statistics WHERE statistic_id = ?`
	args := []any{statisticID}
	if !from.IsZero() {
		q += " AND period_start >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		q += " AND period_start <= ?"
		args = append(args, to.UTC())
	}
	q += " ORDER BY period_start ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.EnergyStatistic, 0, 64)
	for rows.Next() {
		var s models.EnergyStatistic
		if err := rows.Scan(&s.StatisticID, &s.PeriodStart, &s.PeriodWh, &s.CumulativeWh); err != nil {
			return nil, err
		}
		s.PeriodStart = s.PeriodStart.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
