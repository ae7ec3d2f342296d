package dispatch

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// ErrUnknownProtocol is returned when no dispatcher is registered for a
// request's protocol.
var ErrUnknownProtocol = xerrors.New("no dispatcher for protocol")

// Dispatcher delivers data requests over one wire protocol.
type Dispatcher interface {
	// Protocol names the request protocol this dispatcher serves.
	Protocol() string
	// Send delivers the request, blocking until the remote connector has
	// accepted or refused it. A refusal is an error carrying the remote
	// message.
	Send(ctx context.Context, req *transfer.DataRequest) error
}

// Registry routes requests to dispatchers keyed by protocol.
type Registry struct {
	lk          sync.RWMutex
	dispatchers map[string]Dispatcher
}

var _ transfer.DispatcherRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{dispatchers: map[string]Dispatcher{}}
}

func (r *Registry) Register(d Dispatcher) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.dispatchers[d.Protocol()] = d
}

func (r *Registry) Send(ctx context.Context, req *transfer.DataRequest) error {
	r.lk.RLock()
	d, ok := r.dispatchers[req.Protocol]
	r.lk.RUnlock()

	if !ok {
		return xerrors.Errorf("request %s protocol %q: %w", req.ID, req.Protocol, ErrUnknownProtocol)
	}
	return d.Send(ctx, req)
}
