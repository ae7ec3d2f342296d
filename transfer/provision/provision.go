package provision

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

var log = logging.Logger("provision")

// Provisioner creates one class of resource named by manifest definitions.
type Provisioner interface {
	// CanProvision reports whether this provisioner handles the definition.
	CanProvision(def transfer.ResourceDefinition) bool
	// Provision creates the resource. Runs off the manager loop; blocking
	// is fine. A returned error fails the whole process.
	Provision(ctx context.Context, def transfer.ResourceDefinition) (transfer.ProvisionedResource, error)
}

// errStaleResult marks a completion that arrived after the process left
// PROVISIONING. The mutation is aborted without a write.
var errStaleResult = xerrors.New("process no longer provisioning")

// Manager fans provisioning work out to registered provisioners and folds
// completions back into the store. Provision returns immediately; the
// process surfaces in PROVISIONED (or ERROR) through the store once all
// definitions are done.
type Manager struct {
	lk           sync.RWMutex
	provisioners []Provisioner

	store  transfer.ProcessStore
	notify func(transfer.Event, transfer.TransferProcess)
}

var _ transfer.ProvisionManager = (*Manager)(nil)

func NewManager(store transfer.ProcessStore) *Manager {
	return &Manager{store: store}
}

func (m *Manager) Register(p Provisioner) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.provisioners = append(m.provisioners, p)
}

// SetNotify installs a hook invoked after every store transition the
// manager performs, with a snapshot of the process. Must be set before
// the first Provision call.
func (m *Manager) SetNotify(fn func(transfer.Event, transfer.TransferProcess)) {
	m.notify = fn
}

func (m *Manager) Provision(ctx context.Context, p *transfer.TransferProcess) {
	if p.ResourceManifest == nil {
		log.Errorw("provision called without a manifest", "process", p.ID)
		return
	}

	defs := p.ResourceManifest.Definitions
	if len(defs) == 0 {
		go m.completeIfDone(ctx, p.ID)
		return
	}

	for _, def := range defs {
		go m.provisionOne(ctx, p.ID, def)
	}
}

func (m *Manager) provisionOne(ctx context.Context, id string, def transfer.ResourceDefinition) {
	prov := m.provisionerFor(def)
	if prov == nil {
		m.fail(ctx, id, xerrors.Errorf("no provisioner for resource type %s", def.Type))
		return
	}

	res, err := prov.Provision(ctx, def)
	if err != nil {
		m.fail(ctx, id, xerrors.Errorf("provisioning resource %s: %w", def.ID, err))
		return
	}
	m.record(ctx, id, res)
}

func (m *Manager) provisionerFor(def transfer.ResourceDefinition) Provisioner {
	m.lk.RLock()
	defer m.lk.RUnlock()
	for _, p := range m.provisioners {
		if p.CanProvision(def) {
			return p
		}
	}
	return nil
}

func (m *Manager) record(ctx context.Context, id string, res transfer.ProvisionedResource) {
	var event transfer.Event
	var fire bool
	var snapshot transfer.TransferProcess
	err := m.store.Mutate(ctx, id, func(p *transfer.TransferProcess) error {
		if p.State != transfer.StateProvisioning {
			return errStaleResult
		}
		if err := p.AddProvisionedResource(res); err != nil {
			return err
		}
		if res.Error {
			if err := p.TransitionError(res.ErrorMessage); err != nil {
				return err
			}
			event, fire = transfer.EventError, true
		} else if p.ProvisioningComplete() {
			if err := p.TransitionProvisioned(); err != nil {
				return err
			}
			event, fire = transfer.EventProvisioned, true
		}
		snapshot = *p
		return nil
	})
	if xerrors.Is(err, errStaleResult) {
		log.Debugw("dropping stale provision result", "process", id, "resource", res.ID)
		return
	}
	if err != nil {
		log.Errorw("recording provisioned resource", "process", id, "resource", res.ID, "error", err)
		return
	}

	log.Infow("resource provisioned", "process", id, "resource", res.ID, "state", snapshot.State)
	if fire && m.notify != nil {
		m.notify(event, snapshot)
	}
}

func (m *Manager) completeIfDone(ctx context.Context, id string) {
	var snapshot transfer.TransferProcess
	err := m.store.Mutate(ctx, id, func(p *transfer.TransferProcess) error {
		if p.State != transfer.StateProvisioning {
			return errStaleResult
		}
		if !p.ProvisioningComplete() {
			return errStaleResult
		}
		if err := p.TransitionProvisioned(); err != nil {
			return err
		}
		snapshot = *p
		return nil
	})
	if xerrors.Is(err, errStaleResult) {
		return
	}
	if err != nil {
		log.Errorw("completing provisioning", "process", id, "error", err)
		return
	}

	if m.notify != nil {
		m.notify(transfer.EventProvisioned, snapshot)
	}
}

func (m *Manager) fail(ctx context.Context, id string, ferr error) {
	var snapshot transfer.TransferProcess
	err := m.store.Mutate(ctx, id, func(p *transfer.TransferProcess) error {
		if p.State != transfer.StateProvisioning {
			return errStaleResult
		}
		if err := p.TransitionError(ferr.Error()); err != nil {
			return err
		}
		snapshot = *p
		return nil
	})
	if xerrors.Is(err, errStaleResult) {
		log.Debugw("dropping stale provision failure", "process", id, "error", ferr)
		return
	}
	if err != nil {
		log.Errorw("failing process", "process", id, "error", err)
		return
	}

	log.Warnw("provisioning failed", "process", id, "error", ferr)
	if m.notify != nil {
		m.notify(transfer.EventError, snapshot)
	}
}
