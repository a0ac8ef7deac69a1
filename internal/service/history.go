package service

import (
	"context"
	"fmt"
	"time"

	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/models"
	"fenix_bridge/internal/repository"
)

// Aggregation boundaries relative to now: the vendor keeps hourly metrics
// for about a week and daily metrics for about three months; older ranges
// are only served monthly.
const (
	hourlyWindow = 7 * 24 * time.Hour
	dailyWindow  = 90 * 24 * time.Hour
	dailyChunk   = 30 * 24 * time.Hour
)

// energySource is the slice of the vendor client the history service needs.
type energySource interface {
	SubscriptionID() string
	RoomEnergyHistory(ctx context.Context, installationID, roomID, subscriptionID string, start, end time.Time, period fenix.EnergyPeriod) ([]models.EnergyMetric, error)
}

type HistoryService struct {
	client energySource
	stats  repository.StatisticsRepo
	events repository.EventRepo
	now    func() time.Time
}

func NewHistoryService(client energySource, stats repository.StatisticsRepo, events repository.EventRepo) *HistoryService {
	return &HistoryService{
		client: client,
		stats:  stats,
		events: events,
		now:    time.Now,
	}
}

// StatisticID names the local statistic a room's energy history lands in.
func StatisticID(installationID, roomID string) string {
	return "energy:" + installationID + ":" + roomID
}

// ImportRoomEnergy fetches the room's consumption over [from, to] and
// appends it to the local statistic, continuing the cumulative sum from
// whatever was imported before. Returns the number of imported rows.
func (s *HistoryService) ImportRoomEnergy(ctx context.Context, installationID, roomID string, from, to time.Time) (int, error) {
	if installationID == "" || roomID == "" {
		return 0, &fenix.ValidationError{Msg: "installation id and room id are required"}
	}
	now := s.now().UTC()
	from, to = from.UTC(), to.UTC()
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return 0, &fenix.ValidationError{Msg: "from must be before to"}
	}
	if to.After(now) {
		to = now
	}

	statID := StatisticID(installationID, roomID)
	first, err := s.stats.FirstPeriodStart(ctx, statID)
	if err != nil {
		return 0, fmt.Errorf("load first period for %s: %w", statID, err)
	}

	var sum float64
	if first != nil && from.Before(*first) {
		// Backfill: stop where stored data begins so the ranges never
		// overlap. These rows precede every stored one, so the running
		// sum restarts at zero instead of continuing the tail.
		to = minTime(to, *first)
	} else {
		sum, err = s.stats.LastSum(ctx, statID)
		if err != nil {
			return 0, fmt.Errorf("load cumulative sum for %s: %w", statID, err)
		}
	}

	var rows []models.EnergyStatistic
	for cur := from; cur.Before(to); {
		period, chunkEnd := aggregationFor(now, cur, to)

		metrics, err := s.client.RoomEnergyHistory(ctx, installationID, roomID, s.client.SubscriptionID(), cur, chunkEnd, period)
		if err != nil {
			return 0, fmt.Errorf("fetch %s metrics %s..%s: %w", period, cur.Format(time.RFC3339), chunkEnd.Format(time.RFC3339), err)
		}
		for _, m := range metrics {
			sum += m.SumWh
			rows = append(rows, models.EnergyStatistic{
				StatisticID:  statID,
				PeriodStart:  m.PeriodStart.UTC(),
				PeriodWh:     m.SumWh,
				CumulativeWh: sum,
			})
		}
		cur = chunkEnd
	}

	if err := s.stats.Insert(ctx, rows); err != nil {
		return 0, fmt.Errorf("persist statistics for %s: %w", statID, err)
	}

	if err := s.events.Append(ctx, models.BridgeEvent{
		OccurredAt:  now,
		Type:        "IMPORT",
		Description: fmt.Sprintf("Imported %d energy rows for room %s", len(rows), roomID),
		Metadata: map[string]any{
			"statistic_id": statID,
			"from":         from.Format(time.RFC3339),
			"to":           to.Format(time.RFC3339),
			"rows":         len(rows),
		},
	}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Statistics lists imported rows of one statistic inside [from, to].
func (s *HistoryService) Statistics(ctx context.Context, statisticID string, from, to time.Time) ([]models.EnergyStatistic, error) {
	if statisticID == "" {
		return nil, &fenix.ValidationError{Msg: "statistic id is required"}
	}
	return s.stats.List(ctx, statisticID, normalizeToUTC(from), normalizeToUTC(to))
}

// aggregationFor picks the finest aggregation the vendor still serves for
// a chunk starting at cur, and where that chunk must end. Daily reads are
// capped at 30 days per request.
func aggregationFor(now, cur, to time.Time) (fenix.EnergyPeriod, time.Time) {
	hourlyEdge := now.Add(-hourlyWindow)
	dailyEdge := now.Add(-dailyWindow)

	switch {
	case cur.Before(dailyEdge):
		return fenix.PeriodMonth, minTime(to, dailyEdge)
	case cur.Before(hourlyEdge):
		return fenix.PeriodDay, minTime(to, minTime(cur.Add(dailyChunk), hourlyEdge))
	default:
		return fenix.PeriodHour, to
	}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
