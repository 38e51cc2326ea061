// Package tokenstore maps bearer tokens embedded in the gateway URL to a
// persistent bot identity and its backend session handle (C1).
package tokenstore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned on a lookup miss. Storage errors are wrapped
// separately; callers at the API boundary are expected to collapse both
// into the same 401, per the gateway's Unauthorized policy.
var ErrNotFound = errors.New("token not found")

// Record is the durable token → bot-identity mapping.
type Record struct {
	ID          int64
	Token       string
	FullToken   string
	BotID       int64
	SessionName string
	BotUsername string
	BotName     string
	OwnerID     int64
	Verified    bool
	CreatedAt   int64
}

// Patch is a partial update applied by bot id.
type Patch struct {
	BotUsername *string
	BotName     *string
	Verified    *bool
}

// Store is the token store, backed by the shared SQL database.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Lookup tries an exact match on token, then on full_token. A miss
// returns ErrNotFound; no other side effects occur.
func (s *Store) Lookup(ctx context.Context, tokenOrFullToken string) (*Record, error) {
	rec, err := s.lookupBy(ctx, "token", tokenOrFullToken)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.lookupBy(ctx, "full_token", tokenOrFullToken)
}

func (s *Store) lookupBy(ctx context.Context, column, value string) (*Record, error) {
	query := `
		SELECT id, token, full_token, bot_id, session_name, bot_username, bot_name, owner_id, verified, created_at
		FROM bot_token WHERE ` + column + ` = $1
	`
	row := s.db.QueryRowContext(ctx, query, value)
	var rec Record
	if err := row.Scan(
		&rec.ID, &rec.Token, &rec.FullToken, &rec.BotID, &rec.SessionName,
		&rec.BotUsername, &rec.BotName, &rec.OwnerID, &rec.Verified, &rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to look up token")
	}
	return &rec, nil
}

// Create inserts a new token record. The caller guarantees uniqueness of
// (bot_id, token) and full_token.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	query := `
		INSERT INTO bot_token
		(token, full_token, bot_id, session_name, bot_username, bot_name, owner_id, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Token, rec.FullToken, rec.BotID, rec.SessionName,
		rec.BotUsername, rec.BotName, rec.OwnerID, rec.Verified, rec.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create token for bot %d", rec.BotID)
	}
	slog.Info("token created", "bot_id", rec.BotID, "session_name", rec.SessionName)
	return nil
}

// Update applies a partial patch to the record identified by bot_id.
func (s *Store) Update(ctx context.Context, botID int64, patch Patch) error {
	query := `
		UPDATE bot_token
		SET bot_username = COALESCE($2, bot_username),
		    bot_name = COALESCE($3, bot_name),
		    verified = COALESCE($4, verified)
		WHERE bot_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, botID, patch.BotUsername, patch.BotName, patch.Verified)
	if err != nil {
		return errors.Wrapf(err, "failed to update token for bot %d", botID)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
