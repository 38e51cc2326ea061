// Package callbackstore is the short-lived durable mailbox bridging the
// inbound callback event with the outbound answerCallbackQuery HTTP call
// (C2). It is the rendezvous point between the synchronous dispatcher
// (which writes) and the background reconciler (which reads and deletes).
package callbackstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no record exists for the given query id.
var ErrNotFound = errors.New("callback answer not found")

// Record is the answer payload deposited by answerCallbackQuery.
type Record struct {
	QueryID   string
	Alert     bool
	Message   *string
	URL       *string
	CacheTime int
	CreatedAt int64
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put is idempotent by query_id: delete-then-insert inside one transaction.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM callback_answer WHERE query_id = $1`, rec.QueryID); err != nil {
		return errors.Wrapf(err, "failed to clear prior answer for query %s", rec.QueryID)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO callback_answer (query_id, alert, message, url, cache_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.QueryID, rec.Alert, rec.Message, rec.URL, rec.CacheTime, rec.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to insert answer for query %s", rec.QueryID)
	}
	return errors.Wrap(tx.Commit(), "failed to commit callback answer")
}

func (s *Store) Get(ctx context.Context, queryID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT query_id, alert, message, url, cache_time, created_at
		FROM callback_answer WHERE query_id = $1
	`, queryID)
	var rec Record
	if err := row.Scan(&rec.QueryID, &rec.Alert, &rec.Message, &rec.URL, &rec.CacheTime, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get callback answer for query %s", queryID)
	}
	return &rec, nil
}

// Delete is a no-op if the record is absent.
func (s *Store) Delete(ctx context.Context, queryID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM callback_answer WHERE query_id = $1`, queryID); err != nil {
		return errors.Wrapf(err, "failed to delete callback answer for query %s", queryID)
	}
	return nil
}
