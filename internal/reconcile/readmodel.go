package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/metrics"
	"github.com/hrygo/botgateway/internal/updates"
)

// ReadModelEntry is one row of the backend's pre-materialized
// eventflow-botcallbackanswerreadmodel collection (§6 of spec.md).
type ReadModelEntry struct {
	QueryID   string
	BotID     int64
	PeerID    int64
	MsgID     int
	Alert     bool
	Message   string
	URL       string
	CacheTime int
}

// ReadModelSource is the backend collaborator the secondary reconciler
// scans; it is a black-box dependency like the admin REST client.
type ReadModelSource interface {
	Scan(ctx context.Context) ([]ReadModelEntry, error)
}

// scanInterval matches the source's 500ms cadence for the secondary
// reconciler path.
const scanInterval = 500 * time.Millisecond

// ReadModelPoller is the alternative callback-answer path described in
// spec.md §4.6: functionally equivalent to Watcher, present and tested
// but not started by cmd/botgateway — passing
// --callback-source=readmodel there only logs a warning, since no
// concrete ReadModelSource is wired into the build. See SPEC_FULL.md's
// SUPPLEMENTED FEATURES for why both paths are kept in the tree.
type ReadModelPoller struct {
	source ReadModelSource
	admin  *adminrest.Client
	mgr    *updates.Manager
	log    *slog.Logger
	metrics *metrics.Metrics

	seen map[string]bool
}

// SetMetrics wires prometheus instrumentation; safe to leave unset.
func (p *ReadModelPoller) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

func NewReadModelPoller(source ReadModelSource, admin *adminrest.Client, mgr *updates.Manager, log *slog.Logger) *ReadModelPoller {
	if log == nil {
		log = slog.Default()
	}
	return &ReadModelPoller{source: source, admin: admin, mgr: mgr, log: log, seen: make(map[string]bool)}
}

// PollReadModel runs the scan loop until ctx is canceled.
func (p *ReadModelPoller) PollReadModel(ctx context.Context) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scanOnce(ctx)
		}
	}
}

func (p *ReadModelPoller) scanOnce(ctx context.Context) {
	entries, err := p.source.Scan(ctx)
	if err != nil {
		p.log.Warn("reconcile: read-model scan failed", "err", err)
		return
	}
	for _, e := range entries {
		dedupKey := fmt.Sprintf("%s_%d", e.QueryID, e.MsgID)
		if p.seen[dedupKey] {
			continue
		}
		p.seen[dedupKey] = true

		if err := p.admin.AnswerCallback(ctx, adminrest.AnswerCallbackRequest{
			QueryID:   e.QueryID,
			PeerID:    e.PeerID,
			MsgID:     e.MsgID,
			Alert:     e.Alert,
			Message:   e.Message,
			URL:       e.URL,
			CacheTime: e.CacheTime,
		}); err != nil {
			p.log.Warn("reconcile: read-model answer-callback failed", "query_id", e.QueryID, "err", err)
			if p.metrics != nil {
				p.metrics.ReconcileOutcomes.WithLabelValues("read_model", "error").Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.ReconcileOutcomes.WithLabelValues("read_model", "delivered").Inc()
		}
	}
}
