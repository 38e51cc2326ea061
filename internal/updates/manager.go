// Package updates implements the per-bot update queue, its dedup sets,
// monotonic update ids, and the long-poll rendezvous used by getUpdates
// (C4).
package updates

import (
	"context"
	"sync"
	"time"

	"github.com/hrygo/botgateway/internal/botapi"
)

const cleanupInterval = 300 * time.Second

// MaxQueueSize bounds the per-bot queue; overflow drops the oldest entries.
const MaxQueueSize = 1000

type botState struct {
	mu                sync.Mutex
	queue             []botapi.Update
	counter           int
	messageDedup      *dedupSet
	callbackDedup     *dedupSet
	handlerRegistered bool
}

func newBotState() *botState {
	return &botState{
		counter:       int(time.Now().UnixMilli()),
		messageDedup:  newDedupSet(cleanupInterval),
		callbackDedup: newDedupSet(cleanupInterval),
	}
}

// Manager owns one botState per bot_id, created lazily on first use.
type Manager struct {
	mu   sync.Mutex
	bots map[int64]*botState
	maxQ int
}

func New() *Manager {
	return &Manager{
		bots: make(map[int64]*botState),
		maxQ: MaxQueueSize,
	}
}

func (m *Manager) state(botID int64) *botState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bots[botID]
	if !ok {
		s = newBotState()
		m.bots[botID] = s
	}
	return s
}

// Add assigns the next update_id for bot_id and appends the update,
// truncating the queue to maxQ entries from the front on overflow.
func (m *Manager) Add(botID int64, u botapi.Update) botapi.Update {
	s := m.state(botID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	u.UpdateID = s.counter
	s.queue = append(s.queue, u)
	if len(s.queue) > m.maxQ {
		s.queue = append([]botapi.Update(nil), s.queue[len(s.queue)-m.maxQ:]...)
	}
	return u
}

// Get implements the read/acknowledgment path: entries with
// update_id < offset are dropped from the queue (ack), then entries with
// update_id >= offset are returned in ascending order, capped at limit.
func (m *Manager) Get(botID int64, offset, limit int) []botapi.Update {
	s := m.state(botID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset > 0 {
		kept := s.queue[:0:0]
		for _, u := range s.queue {
			if u.UpdateID >= offset {
				kept = append(kept, u)
			}
		}
		s.queue = kept
	}

	// s.queue is already update_id-ascending since update_id is assigned
	// monotonically at Add time; offset>0 has already dropped everything
	// below it above, and offset==0 means nothing to drop.
	result := append([]botapi.Update(nil), s.queue...)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// WaitForUpdates implements the getUpdates long-poll contract: poll once,
// and if empty and timeout > 0, sleep 1s and retry until the deadline.
// The 1s quantization is carried as-is regardless of the caller's timeout
// value — see the Open Question in SPEC_FULL.md.
func (m *Manager) WaitForUpdates(ctx context.Context, botID int64, offset, limit int, timeout time.Duration) []botapi.Update {
	deadline := time.Now().Add(timeout)
	for {
		result := m.Get(botID, offset, limit)
		if len(result) > 0 {
			return result
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return result
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(time.Second):
		}
	}
}

// MarkMessageSeen reports whether msgKey has already been processed within
// the dedup window; if not, it marks it seen.
func (m *Manager) MarkMessageSeen(botID int64, msgKey string) bool {
	return m.state(botID).messageDedup.seen(msgKey)
}

// MarkCallbackSeen reports whether cbKey has already been processed within
// the dedup window; if not, it marks it seen.
func (m *Manager) MarkCallbackSeen(botID int64, cbKey string) bool {
	return m.state(botID).callbackDedup.seen(cbKey)
}

// IsHandlerRegistered reports whether event-ingest handlers are already
// subscribed for bot_id, preventing double subscription.
func (m *Manager) IsHandlerRegistered(botID int64) bool {
	s := m.state(botID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlerRegistered
}

// MarkHandlerRegistered flags bot_id as having its handlers installed.
func (m *Manager) MarkHandlerRegistered(botID int64) {
	s := m.state(botID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlerRegistered = true
}
