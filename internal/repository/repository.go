package repository

import (
	"context"
	"database/sql"
	"time"

	"fenix_bridge/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// TokenRepo persists the vendor session's token state across restarts.
type TokenRepo interface {
	Save(ctx context.Context, t models.TokenState) error
	Load(ctx context.Context) (models.TokenState, error)
}

// EventRepo is the append-only bridge event log with filtered access.
type EventRepo interface {
	Append(ctx context.Context, e models.BridgeEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.BridgeEvent, error)
}

// StatisticsRepo stores imported historical energy statistics.
type StatisticsRepo interface {
	Insert(ctx context.Context, rows []models.EnergyStatistic) error
	LastSum(ctx context.Context, statisticID string) (float64, error)
	FirstPeriodStart(ctx context.Context, statisticID string) (*time.Time, error)
	List(ctx context.Context, statisticID string, from, to time.Time) ([]models.EnergyStatistic, error)
}

type Repository struct {
	TokenRepo  TokenRepo
	EventRepo  EventRepo
	Statistics StatisticsRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		TokenRepo:  NewTokenSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Statistics: NewStatisticsSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
