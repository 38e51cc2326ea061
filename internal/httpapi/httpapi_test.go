package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/dispatch"
	"github.com/hrygo/botgateway/internal/httpapi"
	"github.com/hrygo/botgateway/internal/mtclient"
	"github.com/hrygo/botgateway/internal/mtclient/session"
	"github.com/hrygo/botgateway/internal/storedb"
	"github.com/hrygo/botgateway/internal/tokenstore"
	"github.com/hrygo/botgateway/internal/updates"
)

type fakeClient struct {
	me mtclient.Me
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
	return &mtclient.IncomingMessage{}, nil
}
func (f *fakeClient) DeleteMessages(ctx context.Context, peerID int64, msgIDs []int) error { return nil }
func (f *fakeClient) EditMessage(ctx context.Context, peerID int64, msgID int, text string) error {
	return nil
}
func (f *fakeClient) SendRaw(ctx context.Context, peerID int64, text string) (int, error) {
	return 1, nil
}
func (f *fakeClient) Events() <-chan mtclient.Event { return nil }

type fakeDialer struct{ client *fakeClient }

func (d *fakeDialer) Dial(ctx context.Context, sessionName string, blob []byte) (mtclient.Client, error) {
	return d.client, nil
}

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	db, err := storedb.Open(storedb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := tokenstore.New(db)
	require.NoError(t, tokens.Create(context.Background(), &tokenstore.Record{
		Token: "abc", FullToken: "123:abc", BotID: 123, SessionName: "bot_123",
	}))

	client := &fakeClient{me: mtclient.Me{ID: 123, IsBot: true, FirstName: "Test"}}
	sessStore := session.New(t.TempDir(), []byte("0123456789abcdef0123456789abcdef"))
	registry := mtclient.NewRegistry(&fakeDialer{client: client}, sessStore, nil, nil)

	admin := adminrest.New("", 1000, 100)
	disp := dispatch.New(context.Background(), tokens, registry, updates.New(), callbackstore.New(db), admin, nil, nil)
	return httpapi.New(disp, nil, nil)
}

func TestGetMeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bot123:abc/getMe", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, true, env["ok"])
}

func TestUnknownTokenReturns401(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/botDEADBEEF/getMe", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnroutedPathReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/not-a-bot-route", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageViaJSONBody(t *testing.T) {
	s := newTestServer(t)
	body := `{"chat_id":42,"text":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/bot123:abc/sendMessage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessageViaFormBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/bot123:abc/sendMessage", strings.NewReader("chat_id=42&text=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUpdatesViaQueryString(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/bot123:abc/getUpdates?offset=0&timeout=0", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, true, env["ok"])
}
