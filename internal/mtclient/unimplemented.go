package mtclient

import (
	"context"

	"github.com/pkg/errors"
)

// ErrTransportNotConfigured is returned by UnimplementedDialer: the
// MTProto wire transport is an external collaborator specified only
// through the Client interface (spec.md §1) and must be supplied by
// the deployment wiring the gateway to a concrete backend.
var ErrTransportNotConfigured = errors.New("mtclient: no MTProto transport configured")

// UnimplementedDialer is the default Dialer cmd/botgateway wires when
// no concrete transport is supplied; every Dial fails closed rather
// than silently no-op'ing.
type UnimplementedDialer struct{}

func (UnimplementedDialer) Dial(ctx context.Context, sessionName string, sessionBlob []byte) (Client, error) {
	return nil, ErrTransportNotConfigured
}
