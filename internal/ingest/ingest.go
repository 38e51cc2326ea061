// Package ingest subscribes to a bot's client event stream and
// normalizes each event into a Bot-API-shaped update fed to the
// updates manager (C5). One canonical subscription path is used: the
// typed Client.Events() channel, consolidating the source's two
// near-duplicate event-handler modules onto the raw-event path — see
// DESIGN.md for the reasoning.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/botgateway/internal/botapi"
	"github.com/hrygo/botgateway/internal/metrics"
	"github.com/hrygo/botgateway/internal/mtclient"
	"github.com/hrygo/botgateway/internal/updates"
)

// CallbackWatcherFunc is invoked once per freshly ingested callback
// query, letting the caller (cmd/botgateway) spawn a reconciler
// watcher without this package depending on internal/reconcile.
type CallbackWatcherFunc func(botID int64, queryID string, peerID int64, msgID int)

// Subscriber drains a client's event stream into the updates manager.
type Subscriber struct {
	mgr            *updates.Manager
	log            *slog.Logger
	onCallback     CallbackWatcherFunc
	entityFetchGap time.Duration
	metrics        *metrics.Metrics
}

// SetMetrics wires prometheus instrumentation; safe to leave unset.
func (s *Subscriber) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func New(mgr *updates.Manager, log *slog.Logger, onCallback CallbackWatcherFunc) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{mgr: mgr, log: log, onCallback: onCallback, entityFetchGap: 100 * time.Millisecond}
}

// Subscribe installs the event loop for botID against client, unless
// already registered. It returns immediately; the loop runs until ctx
// is canceled or the event channel closes.
func (s *Subscriber) Subscribe(ctx context.Context, botID int64, client mtclient.Client) {
	if s.mgr.IsHandlerRegistered(botID) {
		return
	}
	s.mgr.MarkHandlerRegistered(botID)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-client.Events():
				if !ok {
					return
				}
				s.handle(ctx, botID, client, ev)
			}
		}
	}()
}

func (s *Subscriber) handle(ctx context.Context, botID int64, client mtclient.Client, ev mtclient.Event) {
	switch ev.Kind {
	case mtclient.EventMessage:
		s.handleMessage(ctx, botID, client, ev.Message)
	case mtclient.EventCallback:
		s.handleCallback(ctx, botID, client, ev.Callback)
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, botID int64, client mtclient.Client, m *mtclient.IncomingMessage) {
	if m == nil || m.SenderID == botID {
		return
	}
	key := fmt.Sprintf("%d_%d", m.ChatID, m.MessageID)
	if s.mgr.MarkMessageSeen(botID, key) {
		return
	}
	if m.Text == "" {
		return
	}

	sender, err := client.GetEntity(ctx, m.SenderID)
	if err != nil {
		s.log.Warn("ingest: resolve sender failed, dropping message", "bot_id", botID, "sender_id", m.SenderID, "err", err)
		return
	}
	chat, err := client.GetEntity(ctx, m.ChatID)
	if err != nil {
		s.log.Warn("ingest: resolve chat failed, dropping message", "bot_id", botID, "chat_id", m.ChatID, "err", err)
		return
	}

	update := botapi.Update{
		Message: &botapi.Message{
			MessageID: m.MessageID,
			From: &botapi.User{
				ID:           sender.ID,
				IsBot:        sender.IsBot,
				FirstName:    sender.FirstName,
				UserName:     sender.Username,
				LanguageCode: sender.LanguageCode,
				IsPremium:    sender.IsPremium,
			},
			Chat: &botapi.Chat{
				ID:        chat.ID,
				FirstName: chat.FirstName,
				UserName:  chat.Username,
				Type:      botapi.ChatType(chat.FirstName != ""),
			},
			Date: int(m.Date),
			Text: m.Text,
		},
	}
	s.mgr.Add(botID, update)
	if s.metrics != nil {
		s.metrics.UpdatesEnqueued.WithLabelValues("message").Inc()
	}
}

func (s *Subscriber) handleCallback(ctx context.Context, botID int64, client mtclient.Client, cb *mtclient.IncomingCallback) {
	if cb == nil || cb.UserID == botID {
		return
	}
	data := string(cb.DataUTF8)
	key := fmt.Sprintf("cb_%d_%d_%s", cb.UserID, cb.MsgID, data)
	if s.mgr.MarkCallbackSeen(botID, key) {
		return
	}

	time.Sleep(s.entityFetchGap)

	sender, err := client.GetEntity(ctx, cb.UserID)
	if err != nil {
		s.log.Warn("ingest: resolve callback sender failed, dropping", "bot_id", botID, "user_id", cb.UserID, "err", err)
		return
	}
	msg, err := client.GetMessage(ctx, cb.PeerID, cb.MsgID)
	if err != nil {
		s.log.Warn("ingest: resolve callback message failed, dropping", "bot_id", botID, "peer_id", cb.PeerID, "msg_id", cb.MsgID, "err", err)
		return
	}

	update := botapi.Update{
		CallbackQuery: &botapi.CallbackQuery{
			ID: cb.QueryID,
			From: &botapi.User{
				ID:        sender.ID,
				IsBot:     sender.IsBot,
				FirstName: sender.FirstName,
				UserName:  sender.Username,
			},
			Message: &botapi.Message{
				MessageID: msg.MessageID,
				Date:      int(msg.Date),
				Chat:      &botapi.Chat{ID: cb.PeerID},
				Text:      msg.Text,
			},
			ChatInstance: fmt.Sprintf("%d_%d", cb.PeerID, time.Now().Unix()),
			Data:         data,
		},
	}
	s.mgr.Add(botID, update)
	if s.metrics != nil {
		s.metrics.UpdatesEnqueued.WithLabelValues("callback_query").Inc()
	}

	if s.onCallback != nil {
		s.onCallback(botID, cb.QueryID, cb.PeerID, cb.MsgID)
	}
}
