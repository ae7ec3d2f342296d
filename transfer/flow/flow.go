package flow

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// Controller moves the bytes for one class of data request on the
// provider side.
type Controller interface {
	// CanHandle reports whether this controller serves the request.
	CanHandle(req *transfer.DataRequest) bool
	// InitiateFlow starts moving data. It returns once the flow is
	// underway; an error fails the process.
	InitiateFlow(ctx context.Context, req *transfer.DataRequest) error
}

// ControllerFunc adapts a function to Controller, claiming every request.
type ControllerFunc func(ctx context.Context, req *transfer.DataRequest) error

func (f ControllerFunc) CanHandle(*transfer.DataRequest) bool { return true }

func (f ControllerFunc) InitiateFlow(ctx context.Context, req *transfer.DataRequest) error {
	return f(ctx, req)
}

// Manager routes flow initiation to the first registered controller that
// claims the request.
type Manager struct {
	lk          sync.RWMutex
	controllers []Controller
}

var _ transfer.DataFlowManager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Register(c Controller) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.controllers = append(m.controllers, c)
}

func (m *Manager) InitiateFlow(ctx context.Context, req *transfer.DataRequest) error {
	m.lk.RLock()
	controllers := m.controllers
	m.lk.RUnlock()

	for _, c := range controllers {
		if c.CanHandle(req) {
			return c.InitiateFlow(ctx, req)
		}
	}
	return xerrors.Errorf("no flow controller for request %s (destination %s)", req.ID, destinationType(req))
}

func destinationType(req *transfer.DataRequest) string {
	if req.Destination == nil {
		return "<none>"
	}
	return req.Destination.Type
}
