package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fenix_bridge/internal/models"
)

type TokenSQLite struct {
	db *sql.DB
}

func NewTokenSQLite(db *sql.DB) *TokenSQLite {
	return &TokenSQLite{db: db}
}

// constants and helpers for clarity and reuse
const (
	tokenRowID = 1

	insertOrUpdateTokenSQL = `
		INSERT INTO tokens (id, access_token, refresh_token, expires_at, subject_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at=excluded.expires_at,
			subject_id=excluded.subject_id,
			updated_at=excluded.updated_at
	`

	selectTokenSQL = `
		SELECT access_token, refresh_token, expires_at, subject_id
		FROM tokens WHERE id=?
	`
)

// Save upserts the single tokens row (id always 1). An empty TokenState
// is written too: a cleared session must stay cleared across restarts.
func (r *TokenSQLite) Save(ctx context.Context, t models.TokenState) error {
	var expires any
	if !t.ExpiresAt.IsZero() {
		expires = t.ExpiresAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, insertOrUpdateTokenSQL,
		tokenRowID,
		t.AccessToken,
		t.RefreshToken,
		expires,
		t.SubjectID,
		time.Now().UTC(),
	)
	return err
}

// Load fetches the single tokens row; a missing row is an empty state,
// not an error.
func (r *TokenSQLite) Load(ctx context.Context) (models.TokenState, error) {
	row := r.db.QueryRowContext(ctx, selectTokenSQL, tokenRowID)

	var t models.TokenState
	var expires sql.NullTime
	var subject sql.NullString
	if err := row.Scan(&t.AccessToken, &t.RefreshToken, &expires, &subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TokenState{}, nil // no login persisted yet
		}
		return models.TokenState{}, err
	}
	if expires.Valid {
		t.ExpiresAt = expires.Time.UTC()
	}
	if subject.Valid {
		t.SubjectID = subject.String
	}
	return t, nil
}
