package transfer

import (
	"context"
	"time"

	"golang.org/x/xerrors"
)

// ErrProcessNotFound is returned by store lookups for ids or request ids
// that are not tracked.
var ErrProcessNotFound = xerrors.New("transfer process not tracked")

// ProcessStore persists transfer processes. Implementations must be safe
// for concurrent use; the manager worker, provisioning completions and
// intake callers all touch the store.
type ProcessStore interface {
	// Create persists a new process. The process must be in INITIAL and
	// its id must not already exist.
	Create(ctx context.Context, p *TransferProcess) error
	// Update persists the current snapshot of an existing process.
	Update(ctx context.Context, p *TransferProcess) error
	// Get returns the process with the given id.
	Get(ctx context.Context, id string) (*TransferProcess, error)
	// Mutate atomically loads, mutates and persists a process. An error
	// from the mutator aborts without writing and is returned.
	Mutate(ctx context.Context, id string, mutate func(*TransferProcess) error) error
	// GetForRequestID returns the process owning the given data request
	// correlation id.
	GetForRequestID(ctx context.Context, requestID string) (*TransferProcess, error)
	// NextForState returns up to limit processes in the given state,
	// oldest state change first.
	NextForState(ctx context.Context, state ProcessState, limit int) ([]*TransferProcess, error)
	// List returns all processes.
	List(ctx context.Context) ([]*TransferProcess, error)
	// Delete removes a process.
	Delete(ctx context.Context, id string) error
}

// ManifestGenerator derives the resource manifest for a process entering
// provisioning.
type ManifestGenerator interface {
	// GenerateClientManifest produces the manifest for a client process,
	// from its destination.
	GenerateClientManifest(ctx context.Context, p *TransferProcess) (*ResourceManifest, error)
	// GenerateProviderManifest produces the manifest for a provider
	// process, from the requested dataset.
	GenerateProviderManifest(ctx context.Context, p *TransferProcess) (*ResourceManifest, error)
}

// ProvisionManager provisions the resources named by a process manifest.
// Provision returns immediately; completions surface as store writes
// moving the process to PROVISIONED or ERROR.
type ProvisionManager interface {
	Provision(ctx context.Context, p *TransferProcess)
}

// DispatcherRegistry delivers data requests to remote connectors, routing
// on the request protocol. Send blocks until the remote has acknowledged
// or refused the request.
type DispatcherRegistry interface {
	Send(ctx context.Context, req *DataRequest) error
}

// DataFlowManager starts the actual movement of data for a provider
// process once its resources are provisioned.
type DataFlowManager interface {
	InitiateFlow(ctx context.Context, req *DataRequest) error
}

// WaitStrategy paces the manager poll loop. NextWait returns the time to
// sleep when a pass found no work; Reset is called whenever a pass did
// work.
type WaitStrategy interface {
	NextWait() time.Duration
	Reset()
}
