package mtclient

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/botgateway/internal/mtclient/session"
)

// PlaceholderAdminID is the fallback admin identity the source this
// gateway is grounded on used when get_me fails on the privileged
// BotFather account; its semantics past that point are undefined.
// No code reads it: AuthorizeBotFather returns an error when get_me
// fails, and the request path never refers to it. See SPEC_FULL.md's
// Open Questions.
const PlaceholderAdminID int64 = 600000000000

// RSAKey is one entry of the backend's key-rotation table.
type RSAKey struct {
	Fingerprint int64
	Modulus     []byte
	Exponent    []byte
}

// Dialer creates a fresh Client bound to a session file and the
// configured data-center endpoint. Implementations live outside this
// package, which only defines the black-box surface (spec.md §1).
type Dialer interface {
	Dial(ctx context.Context, sessionName string, sessionBlob []byte) (Client, error)
}

// Registry lazily opens, authenticates, and caches one Client per
// session_name, sharing it across all HTTP requests for that bot.
type Registry struct {
	dialer Dialer
	store  *session.Store

	mu    sync.Mutex
	cache map[string]Client

	sf singleflight.Group

	currentKeys []RSAKey
	oldKeys     []RSAKey
}

// NewRegistry keeps currentKeys and oldKeys on the returned Registry,
// both generations side by side for key-rotation tolerance. The keys
// are held per Registry, not in a process-wide table, and nothing in
// this package passes them to the Dialer.
func NewRegistry(dialer Dialer, store *session.Store, currentKeys, oldKeys []RSAKey) *Registry {
	return &Registry{
		dialer:      dialer,
		store:       store,
		cache:       make(map[string]Client),
		currentKeys: currentKeys,
		oldKeys:     oldKeys,
	}
}

// Get returns the cached, live client for sessionName, creating and
// authorizing one on cold cache or probe failure. Concurrent cold
// calls for the same sessionName collapse into a single dial via
// singleflight, matching the per-session_name initialization lock
// called for in spec.md §9.
func (r *Registry) Get(ctx context.Context, sessionName string) (Client, error) {
	if c, ok := r.cachedLive(ctx, sessionName); ok {
		return c, nil
	}

	v, err, _ := r.sf.Do(sessionName, func() (interface{}, error) {
		if c, ok := r.cachedLive(ctx, sessionName); ok {
			return c, nil
		}
		return r.dial(ctx, sessionName)
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

func (r *Registry) cachedLive(ctx context.Context, sessionName string) (Client, bool) {
	r.mu.Lock()
	c, ok := r.cache[sessionName]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	if _, err := c.GetMe(ctx); err != nil {
		return nil, false
	}
	return c, true
}

func (r *Registry) dial(ctx context.Context, sessionName string) (Client, error) {
	blob, _, err := r.store.Load(sessionName)
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", sessionName)
	}

	c, err := r.dialer.Dial(ctx, sessionName, blob)
	if err != nil {
		return nil, errors.Wrapf(err, "dial session %s", sessionName)
	}

	if err := c.Connect(ctx); err != nil {
		_ = c.Disconnect(ctx)
		return nil, errors.Wrapf(err, "connect session %s", sessionName)
	}
	authorized, err := c.IsAuthorized(ctx)
	if err != nil || !authorized {
		_ = c.Disconnect(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "authorize session %s", sessionName)
		}
		return nil, errors.Errorf("session %s is not authorized", sessionName)
	}
	if _, err := c.GetMe(ctx); err != nil {
		_ = c.Disconnect(ctx)
		return nil, errors.Wrapf(err, "get_me session %s", sessionName)
	}
	// best-effort state-sync: failure here does not block caching.
	_ = c.CatchUp(ctx)

	r.mu.Lock()
	r.cache[sessionName] = c
	r.mu.Unlock()
	return c, nil
}

// AuthorizeBotFather is the hook for the interactive, out-of-scope
// phone-code/2FA bootstrap flow (spec.md §1, §4.3). It is never called
// from the request path; cmd/botgateway exposes it behind a dedicated
// CLI subcommand. It does not run the phone-code/2FA exchange itself:
// it opens the "botfather" session through Get and reports whether
// that session is authorized; phone is not used.
func (r *Registry) AuthorizeBotFather(ctx context.Context, phone string) (bool, error) {
	c, err := r.Get(ctx, "botfather")
	if err != nil {
		return false, errors.Wrap(err, "authorize botfather")
	}
	authorized, err := c.IsAuthorized(ctx)
	if err != nil {
		return false, errors.Wrap(err, "authorize botfather")
	}
	return authorized, nil
}
