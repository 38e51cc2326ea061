// Package reconcile bridges the gap between an inbound callback event
// (deposited into C4 by ingest) and the outbound answerCallbackQuery
// written later by the HTTP caller, by watching the callback-answer
// store for a deposit and forwarding it to the admin REST (C6).
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/metrics"
)

const (
	// MaxAttempts and CheckInterval bound a single watcher's lifetime
	// to roughly 6s, after which it terminates silently — the caller
	// never answered, and that is not a client-visible failure.
	MaxAttempts  = 20
	CheckInterval = 300 * time.Millisecond
)

// Watcher polls CheckInterval for up to MaxAttempts, and forwards the
// first deposit it observes for a query_id to the admin REST.
type Watcher struct {
	store   *callbackstore.Store
	admin   *adminrest.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewWatcher(store *callbackstore.Store, admin *adminrest.Client, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{store: store, admin: admin, log: log}
}

// SetMetrics wires prometheus instrumentation; safe to leave unset.
func (w *Watcher) SetMetrics(m *metrics.Metrics) {
	w.metrics = m
}

// Watch blocks (intended to run in its own goroutine) until either a
// matching C2 record appears and is forwarded, or the retry budget is
// exhausted.
func (w *Watcher) Watch(ctx context.Context, queryID string, botID, peerID int64, msgID int) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(CheckInterval):
		}

		rec, err := w.store.Get(ctx, queryID)
		if err != nil {
			if err == callbackstore.ErrNotFound {
				continue
			}
			w.log.Warn("reconcile: store lookup failed", "query_id", queryID, "err", err)
			continue
		}

		message := ""
		if rec.Message != nil {
			message = *rec.Message
		}
		urlVal := ""
		if rec.URL != nil {
			urlVal = *rec.URL
		}

		if err := w.admin.AnswerCallback(ctx, adminrest.AnswerCallbackRequest{
			QueryID:   queryID,
			PeerID:    peerID,
			MsgID:     msgID,
			Alert:     rec.Alert,
			Message:   message,
			URL:       urlVal,
			CacheTime: rec.CacheTime,
		}); err != nil {
			w.log.Warn("reconcile: answer-callback failed", "query_id", queryID, "bot_id", botID, "err", err)
			w.record("raw_event", "error")
		} else {
			w.log.Info("reconcile: answer-callback delivered", "query_id", queryID, "bot_id", botID)
			w.record("raw_event", "delivered")
		}

		if delErr := w.store.Delete(ctx, queryID); delErr != nil {
			w.log.Warn("reconcile: cleanup failed", "query_id", queryID, "err", delErr)
		}
		return
	}
	w.log.Debug("reconcile: watcher exhausted retry budget, caller never answered", "query_id", queryID, "bot_id", botID)
	w.record("raw_event", "exhausted")
}

func (w *Watcher) record(path, result string) {
	if w.metrics != nil {
		w.metrics.ReconcileOutcomes.WithLabelValues(path, result).Inc()
	}
}
