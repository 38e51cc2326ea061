// Package mtclient defines the black-box MTProto client surface this
// gateway drives but does not implement: a long-lived, authenticated
// session impersonating a user account on the backend. Concrete wiring
// of the wire protocol itself is outside this package's scope (see
// spec.md §1) — Client is an interface so the registry, ingest, and
// dispatch layers can be built and tested against it independently of
// any one transport implementation.
package mtclient

import "context"

// Event is the union of client-level events the ingest subscription
// observes: an incoming message or a raw callback-query press.
type Event struct {
	Kind     EventKind
	Message  *IncomingMessage
	Callback *IncomingCallback
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventCallback
)

// IncomingMessage is the shape the client library hands to ingest for
// a freshly received message, before Bot-API normalization.
type IncomingMessage struct {
	ChatID    int64
	MessageID int
	SenderID  int64
	Text      string
	Date      int64
}

// IncomingCallback is the shape for a raw UpdateBotCallbackQuery-style
// event, before Bot-API normalization.
type IncomingCallback struct {
	QueryID  string
	UserID   int64
	PeerID   int64
	MsgID    int
	DataUTF8 []byte
}

// Entity is a resolved user or chat, enough for the field mapping in
// spec.md §4.5.
type Entity struct {
	ID           int64
	IsBot        bool
	FirstName    string
	Username     string
	LanguageCode string
	IsPremium    bool
}

// Me is the bot's own identity, returned by GetMe.
type Me struct {
	ID        int64
	IsBot     bool
	FirstName string
	Username  string
}

// Client is the per-session MTProto surface. A concrete implementation
// owns exactly one on-disk session and serializes its own wire
// operations; callers may invoke it concurrently.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)
	GetMe(ctx context.Context) (*Me, error)
	CatchUp(ctx context.Context) error

	GetEntity(ctx context.Context, id int64) (*Entity, error)
	GetMessage(ctx context.Context, peerID int64, msgID int) (*IncomingMessage, error)
	DeleteMessages(ctx context.Context, peerID int64, msgIDs []int) error
	EditMessage(ctx context.Context, peerID int64, msgID int, text string) error
	SendRaw(ctx context.Context, peerID int64, text string) (int, error)

	// Events delivers the normalized event stream this session
	// produces; closed on Disconnect.
	Events() <-chan Event
}
