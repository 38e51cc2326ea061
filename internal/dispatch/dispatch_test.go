package dispatch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/dispatch"
	"github.com/hrygo/botgateway/internal/ingest"
	"github.com/hrygo/botgateway/internal/mtclient"
	"github.com/hrygo/botgateway/internal/mtclient/session"
	"github.com/hrygo/botgateway/internal/storedb"
	"github.com/hrygo/botgateway/internal/tokenstore"
	"github.com/hrygo/botgateway/internal/updates"
)

type fakeClient struct {
	me       mtclient.Me
	messages map[int]*mtclient.IncomingMessage
	events   chan mtclient.Event
}

func (f *fakeClient) Connect(ctx context.Context) error              { return nil }
func (f *fakeClient) Disconnect(ctx context.Context) error           { return nil }
func (f *fakeClient) IsAuthorized(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeClient) GetMe(ctx context.Context) (*mtclient.Me, error) { return &f.me, nil }
func (f *fakeClient) CatchUp(ctx context.Context) error               { return nil }
func (f *fakeClient) GetEntity(ctx context.Context, id int64) (*mtclient.Entity, error) {
	return &mtclient.Entity{ID: id}, nil
}
func (f *fakeClient) GetMessage(ctx context.Context, peerID int64, msgID int) (*mtclient.IncomingMessage, error) {
	if m, ok := f.messages[msgID]; ok {
		return m, nil
	}
	return &mtclient.IncomingMessage{}, nil
}
func (f *fakeClient) DeleteMessages(ctx context.Context, peerID int64, msgIDs []int) error { return nil }
func (f *fakeClient) EditMessage(ctx context.Context, peerID int64, msgID int, text string) error {
	return nil
}
func (f *fakeClient) SendRaw(ctx context.Context, peerID int64, text string) (int, error) {
	return 1, nil
}
func (f *fakeClient) Events() <-chan mtclient.Event { return f.events }

type fakeDialer struct {
	client *fakeClient
}

func (d *fakeDialer) Dial(ctx context.Context, sessionName string, blob []byte) (mtclient.Client, error) {
	return d.client, nil
}

type harness struct {
	disp     *dispatch.Dispatcher
	tokens   *tokenstore.Store
	cbstore  *callbackstore.Store
	mgr      *updates.Manager
	client   *fakeClient
	adminURL string
}

func newHarness(t *testing.T, adminHandler http.HandlerFunc) *harness {
	t.Helper()
	return newHarnessWithBgCtx(t, adminHandler, context.Background(), nil)
}

// newHarnessWithBgCtx builds a harness whose Dispatcher is given bgCtx
// as its long-lived background context. When newIngestor is non-nil,
// it is called with the harness's updates.Manager so the ingest
// subscription Process starts shares the same queue getUpdates reads
// from.
func newHarnessWithBgCtx(t *testing.T, adminHandler http.HandlerFunc, bgCtx context.Context, newIngestor func(*updates.Manager) *ingest.Subscriber) *harness {
	t.Helper()
	db, err := storedb.Open(storedb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := tokenstore.New(db)
	require.NoError(t, tokens.Create(context.Background(), &tokenstore.Record{
		Token: "abc", FullToken: "123:abc", BotID: 123, SessionName: "bot_123",
	}))

	cbstore := callbackstore.New(db)

	client := &fakeClient{me: mtclient.Me{ID: 123, IsBot: true, FirstName: "Test", Username: "testbot"}, events: make(chan mtclient.Event, 1)}
	dir := t.TempDir()
	sessStore := session.New(dir, []byte("0123456789abcdef0123456789abcdef"))
	registry := mtclient.NewRegistry(&fakeDialer{client: client}, sessStore, nil, nil)

	var adminURL string
	if adminHandler != nil {
		srv := httptest.NewServer(adminHandler)
		t.Cleanup(srv.Close)
		adminURL = srv.URL
	}
	admin := adminrest.New(adminURL, 1000, 100)

	mgr := updates.New()
	var ingestor *ingest.Subscriber
	if newIngestor != nil {
		ingestor = newIngestor(mgr)
	}
	disp := dispatch.New(bgCtx, tokens, registry, mgr, cbstore, admin, ingestor, nil)
	return &harness{disp: disp, tokens: tokens, cbstore: cbstore, mgr: mgr, client: client, adminURL: adminURL}
}

func TestGetMeHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "abc", "getMe", dispatch.Params{})
	require.Equal(t, 200, status)
	require.True(t, env.OK)
}

func TestUnknownTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "nope", "getMe", dispatch.Params{})
	require.Equal(t, 401, status)
	require.False(t, env.OK)
	require.Equal(t, 401, env.ErrorCode)
}

func TestSendMessageWithInlineKeyboard(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageId":77}`))
	})

	markup := map[string]interface{}{
		"inline_keyboard": []interface{}{
			[]interface{}{
				map[string]interface{}{"text": "B", "callback_data": "x"},
			},
		},
	}
	env, status := h.disp.Process(context.Background(), "abc", "sendMessage", dispatch.Params{
		"chat_id":      float64(42),
		"text":         "hi",
		"reply_markup": markup,
	})
	require.Equal(t, 200, status)
	require.True(t, env.OK)
}

func TestSendMessageSurfacesRawBackendBodyOnError(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid chat"))
	})

	env, status := h.disp.Process(context.Background(), "abc", "sendMessage", dispatch.Params{
		"chat_id": float64(42),
		"text":    "hi",
	})
	require.Equal(t, 200, status)
	require.False(t, env.OK)
	require.Equal(t, 400, env.ErrorCode)
	require.Equal(t, "invalid chat", env.Description)
}

func TestSendMessageRejectsSelfSend(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "abc", "sendMessage", dispatch.Params{
		"chat_id": float64(123),
		"text":    "hi",
	})
	require.Equal(t, 200, status)
	require.False(t, env.OK)
	require.Equal(t, 400, env.ErrorCode)
}

func TestEditMessageTextNotModified(t *testing.T) {
	h := newHarness(t, nil)
	h.client.messages = map[int]*mtclient.IncomingMessage{5: {MessageID: 5, Text: "same"}}

	env, status := h.disp.Process(context.Background(), "abc", "editMessageText", dispatch.Params{
		"chat_id":    float64(42),
		"message_id": float64(5),
		"text":       "same",
	})
	require.Equal(t, 200, status)
	require.False(t, env.OK)
	require.Equal(t, 400, env.ErrorCode)
	require.Contains(t, env.Description, "not modified")
}

func TestAnswerCallbackQueryWritesStore(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "abc", "answerCallbackQuery", dispatch.Params{
		"callback_query_id": "7",
		"text":              "ok",
		"show_alert":        true,
	})
	require.Equal(t, 200, status)
	require.True(t, env.OK)

	rec, err := h.cbstore.Get(context.Background(), "7")
	require.NoError(t, err)
	require.True(t, rec.Alert)
}

func TestUnknownMethod(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "abc", "frobnicate", dispatch.Params{})
	require.Equal(t, 200, status)
	require.False(t, env.OK)
	require.Equal(t, 400, env.ErrorCode)
	require.Contains(t, env.Description, "not implemented")
}

func TestGetUpdatesEmptyQueueReturnsQuickly(t *testing.T) {
	h := newHarness(t, nil)
	env, status := h.disp.Process(context.Background(), "abc", "getUpdates", dispatch.Params{
		"offset": float64(0), "timeout": float64(0),
	})
	require.Equal(t, 200, status)
	require.True(t, env.OK)
}

// TestIngestSubscriptionOutlivesRequestContext guards against the
// per-request context being threaded into Subscribe: an inbound
// request's context is canceled the instant its handler returns, and
// if that canceled context were the one the ingest event loop selects
// on, the loop would exit within milliseconds of the bot's first HTTP
// call, silently breaking C5/C4/C6 for that bot forever.
func TestIngestSubscriptionOutlivesRequestContext(t *testing.T) {
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	h := newHarnessWithBgCtx(t, nil, bgCtx, func(mgr *updates.Manager) *ingest.Subscriber {
		return ingest.New(mgr, nil, nil)
	})

	reqCtx, cancelReq := context.WithCancel(context.Background())
	env, status := h.disp.Process(reqCtx, "abc", "getMe", dispatch.Params{})
	require.Equal(t, 200, status)
	require.True(t, env.OK)

	// The request's own context is canceled, exactly as net/http does
	// once ServeHTTP returns for that request.
	cancelReq()
	time.Sleep(20 * time.Millisecond)

	h.client.events <- mtclient.Event{
		Kind:    mtclient.EventMessage,
		Message: &mtclient.IncomingMessage{ChatID: 1, MessageID: 1, SenderID: 7, Text: "still alive"},
	}

	require.Eventually(t, func() bool {
		return len(h.mgr.Get(123, 0, 10)) == 1
	}, time.Second, 5*time.Millisecond, "ingest subscription must keep running after its triggering request's context is canceled")
}
