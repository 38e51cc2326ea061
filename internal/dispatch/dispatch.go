// Package dispatch implements the six Bot API verbs by composing the
// token store, client registry, updates manager, callback-answer
// store, and admin REST client (C7).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/botapi"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/ingest"
	"github.com/hrygo/botgateway/internal/metrics"
	"github.com/hrygo/botgateway/internal/mtclient"
	"github.com/hrygo/botgateway/internal/tokenstore"
	"github.com/hrygo/botgateway/internal/updates"
)

// gatewayError carries the HTTP-shaped error code from spec.md §7.
type gatewayError struct {
	Code int
	Desc string
}

func (e *gatewayError) Error() string { return e.Desc }

func unauthorized() *gatewayError { return &gatewayError{Code: 401, Desc: "Unauthorized"} }
func badRequest(format string, a ...interface{}) *gatewayError {
	return &gatewayError{Code: 400, Desc: fmt.Sprintf(format, a...)}
}

const (
	maxUpdatesLimit = 100
	maxTimeout      = 50 * time.Second
)

// Dispatcher is the process(token, method, params) entry point.
type Dispatcher struct {
	tokens    *tokenstore.Store
	registry  *mtclient.Registry
	updatesMu *updates.Manager
	callbacks *callbackstore.Store
	admin     *adminrest.Client
	ingestor  *ingest.Subscriber
	log       *slog.Logger
	metrics   *metrics.Metrics

	// bgCtx is the server's long-lived context, used to start the
	// per-bot ingest subscription. It must outlive any single HTTP
	// request: an inbound request's context is canceled as soon as
	// ServeHTTP returns for that request, and the subscription's event
	// loop — along with C4/C5/C6 for that bot — must not be torn down
	// with it.
	bgCtx context.Context
}

// SetMetrics wires prometheus instrumentation; safe to leave unset in
// tests, which skip recording entirely.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// New builds a Dispatcher. bgCtx is the context that owns any
// background work Process starts (currently, the per-bot ingest
// subscription) and must be scoped to the server's lifetime, not to
// any individual request; a nil bgCtx falls back to
// context.Background().
func New(bgCtx context.Context, tokens *tokenstore.Store, registry *mtclient.Registry, updatesMgr *updates.Manager, callbacks *callbackstore.Store, admin *adminrest.Client, ingestor *ingest.Subscriber, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	return &Dispatcher{
		tokens:    tokens,
		registry:  registry,
		updatesMu: updatesMgr,
		callbacks: callbacks,
		admin:     admin,
		ingestor:  ingestor,
		log:       log,
		bgCtx:     bgCtx,
	}
}

// Process implements the full token-lookup → client-registry →
// get_me → handler-registration → method-dispatch pipeline, mapping
// every outcome to an envelope and its HTTP status.
func (d *Dispatcher) Process(ctx context.Context, token, method string, params Params) (botapi.Envelope, int) {
	rec, err := d.tokens.Lookup(ctx, token)
	if err != nil {
		return envelopeFor(unauthorized())
	}

	client, err := d.registry.Get(ctx, rec.SessionName)
	if err != nil {
		d.log.Warn("dispatch: client registry failed", "bot_id", rec.BotID, "err", err)
		return envelopeFor(unauthorized())
	}

	me, err := client.GetMe(ctx)
	if err != nil {
		d.log.Warn("dispatch: get_me failed", "bot_id", rec.BotID, "err", err)
		return envelopeFor(unauthorized())
	}
	botID := me.ID

	if d.ingestor != nil {
		d.ingestor.Subscribe(d.bgCtx, botID, client)
	}

	lowered := strings.ToLower(method)
	start := time.Now()
	result, callErr := d.call(ctx, lowered, botID, client, me, params)

	if d.metrics != nil {
		outcome := "ok"
		if callErr != nil {
			outcome = "error"
		}
		d.metrics.DispatchDuration.WithLabelValues(lowered, outcome).Observe(time.Since(start).Seconds())
	}

	if callErr != nil {
		return envelopeFor(callErr)
	}
	return botapi.OK(result), 200
}

func (d *Dispatcher) call(ctx context.Context, method string, botID int64, client mtclient.Client, me *mtclient.Me, params Params) (interface{}, *gatewayError) {
	switch method {
	case "getme":
		return d.getMe(ctx, client)
	case "sendmessage":
		return d.sendMessage(ctx, client, me, params)
	case "deletemessage":
		return d.deleteMessage(ctx, client, params)
	case "editmessagetext":
		return d.editMessageText(ctx, client, me, params)
	case "getupdates":
		return d.getUpdates(ctx, botID, params), nil
	case "answercallbackquery":
		return d.answerCallbackQuery(ctx, params)
	default:
		return nil, badRequest("Method '%s' not implemented", method)
	}
}

// adminRestError maps an adminrest error onto a 400 gatewayError,
// surfacing the backend's raw response body verbatim as description
// when the error is a non-2xx status (spec.md §7); any other admin
// REST failure (network, timeout) falls back to its plain message.
func adminRestError(err error) *gatewayError {
	var statusErr *adminrest.StatusError
	if errors.As(err, &statusErr) {
		return badRequest("%s", statusErr.Body)
	}
	return badRequest("%s", err.Error())
}

func envelopeFor(err *gatewayError) (botapi.Envelope, int) {
	status := 200
	if err.Code == 401 {
		status = 401
	}
	if err.Code == 500 {
		status = 500
	}
	return botapi.Error(err.Code, err.Desc), status
}

func internalError(err error) *gatewayError {
	return &gatewayError{Code: 500, Desc: err.Error()}
}
