package transfer

import (
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/build"
)

// ErrInvalidTransition is returned when a state change is requested from a
// state that is not a legal predecessor of the target.
var ErrInvalidTransition = xerrors.New("invalid state transition")

// TransferProcess is the persistent record of one data transfer. All state
// changes go through the transition methods, which validate the current
// state and stamp the change; callers persist the process afterwards.
type TransferProcess struct {
	ID   string
	Type ProcessType

	State      ProcessState
	StateCount int
	// StateTimestamp is the UnixNano time of the last state change. It is
	// the ordering key for ProcessStore.NextForState.
	StateTimestamp int64

	DataRequest          *DataRequest
	ResourceManifest     *ResourceManifest
	ProvisionedResources *ProvisionedResourceSet

	ErrorDetail string
}

// NewProcess creates an unpersisted process in INITIAL for the given
// request, assigning it a fresh id and stamping the request with it.
func NewProcess(t ProcessType, req *DataRequest) (*TransferProcess, error) {
	if req == nil {
		return nil, xerrors.New("nil data request")
	}
	p := &TransferProcess{
		ID:          uuid.New().String(),
		Type:        t,
		DataRequest: req,
	}
	req.ProcessID = p.ID
	if err := p.TransitionInitial(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *TransferProcess) TransitionInitial() error {
	return p.transition(StateInitial, StateUnsaved)
}

// TransitionProvisioning attaches the resource manifest and moves the
// process to PROVISIONING. Re-entry from PROVISIONING is legal and
// replaces the manifest; StateCount records the retry.
func (p *TransferProcess) TransitionProvisioning(manifest *ResourceManifest) error {
	if manifest == nil {
		return xerrors.New("nil resource manifest")
	}
	if err := p.transition(StateProvisioning, StateInitial, StateProvisioning); err != nil {
		return err
	}
	p.ResourceManifest = manifest
	return nil
}

// AddProvisionedResource records the outcome of provisioning one manifest
// definition. Legal only while PROVISIONING; does not change state.
func (p *TransferProcess) AddProvisionedResource(r ProvisionedResource) error {
	if p.State != StateProvisioning {
		return xerrors.Errorf("add provisioned resource in %s: %w", p.State, ErrInvalidTransition)
	}
	if p.ProvisionedResources == nil {
		p.ProvisionedResources = &ProvisionedResourceSet{}
	}
	p.ProvisionedResources.Resources = append(p.ProvisionedResources.Resources, r)
	return nil
}

// ProvisioningComplete reports whether every manifest definition has a
// provisioned resource recorded against it. An empty manifest is complete;
// a process without a manifest is not.
func (p *TransferProcess) ProvisioningComplete() bool {
	if p.ResourceManifest == nil {
		return false
	}
	pending := make(map[string]struct{}, len(p.ResourceManifest.Definitions))
	for _, def := range p.ResourceManifest.Definitions {
		pending[def.ID] = struct{}{}
	}
	if p.ProvisionedResources != nil {
		for _, res := range p.ProvisionedResources.Resources {
			delete(pending, res.DefinitionID)
		}
	}
	return len(pending) == 0
}

func (p *TransferProcess) TransitionProvisioned() error {
	return p.transition(StateProvisioned, StateProvisioning)
}

// TransitionRequested marks the request as handed to the dispatcher. Client
// processes only.
func (p *TransferProcess) TransitionRequested() error {
	if p.Type != Client {
		return xerrors.Errorf("%s process cannot enter %s: %w", p.Type, StateRequested, ErrInvalidTransition)
	}
	return p.transition(StateRequested, StateProvisioned)
}

func (p *TransferProcess) TransitionRequestAck() error {
	return p.transition(StateRequestedAck, StateRequested)
}

// TransitionInProgress records that data is flowing. Providers enter from
// PROVISIONED once the flow is initiated; clients enter from REQUESTED_ACK
// when the provider push is observed.
func (p *TransferProcess) TransitionInProgress() error {
	if p.Type == Client {
		return p.transition(StateInProgress, StateRequestedAck)
	}
	return p.transition(StateInProgress, StateProvisioned)
}

// TransitionError moves the process to ERROR with the given detail. Legal
// from any non-terminal state.
func (p *TransferProcess) TransitionError(detail string) error {
	if p.State.Terminal() {
		return xerrors.Errorf("%s -> %s: %w", p.State, StateError, ErrInvalidTransition)
	}
	p.StateCount = 1
	p.State = StateError
	p.StateTimestamp = build.Clock.Now().UnixNano()
	p.ErrorDetail = detail
	return nil
}

func (p *TransferProcess) transition(target ProcessState, from ...ProcessState) error {
	ok := false
	for _, s := range from {
		if p.State == s {
			ok = true
			break
		}
	}
	if !ok {
		return xerrors.Errorf("%s -> %s: %w", p.State, target, ErrInvalidTransition)
	}
	if p.State == target {
		p.StateCount++
	} else {
		p.StateCount = 1
	}
	p.State = target
	p.StateTimestamp = build.Clock.Now().UnixNano()
	return nil
}
