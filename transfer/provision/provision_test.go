package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/store"
)

type fakeProvisioner struct {
	resourceType string
	err          error
	errResource  bool

	lk    sync.Mutex
	calls []transfer.ResourceDefinition
}

func (f *fakeProvisioner) CanProvision(def transfer.ResourceDefinition) bool {
	return def.Type == f.resourceType
}

func (f *fakeProvisioner) Provision(ctx context.Context, def transfer.ResourceDefinition) (transfer.ProvisionedResource, error) {
	f.lk.Lock()
	f.calls = append(f.calls, def)
	f.lk.Unlock()

	if f.err != nil {
		return transfer.ProvisionedResource{}, f.err
	}
	if f.errResource {
		return transfer.ProvisionedResource{
			ID:           uuid.New().String(),
			DefinitionID: def.ID,
			Type:         def.Type,
			Error:        true,
			ErrorMessage: "remote side refused",
		}, nil
	}
	return transfer.ProvisionedResource{
		ID:           uuid.New().String(),
		DefinitionID: def.ID,
		Type:         def.Type,
	}, nil
}

func provisioningProcess(t *testing.T, s *store.Store, defs ...transfer.ResourceDefinition) *transfer.TransferProcess {
	t.Helper()
	ctx := context.Background()
	p, err := transfer.NewProcess(transfer.Client, &transfer.DataRequest{ID: uuid.New().String(), ManagedResources: true})
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, p))
	require.NoError(t, p.TransitionProvisioning(&transfer.ResourceManifest{Definitions: defs}))
	require.NoError(t, s.Update(ctx, p))
	return p
}

func waitForState(t *testing.T, s *store.Store, id string, state transfer.ProcessState) *transfer.TransferProcess {
	t.Helper()
	var got *transfer.TransferProcess
	require.Eventually(t, func() bool {
		p, err := s.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = p
		return p.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestProvisionCompletes(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	m := NewManager(s)
	fp := &fakeProvisioner{resourceType: "file"}
	m.Register(fp)

	p := provisioningProcess(t, s,
		transfer.ResourceDefinition{ID: "d1", Type: "file"},
		transfer.ResourceDefinition{ID: "d2", Type: "file"},
	)
	m.Provision(ctx, p)

	got := waitForState(t, s, p.ID, transfer.StateProvisioned)
	require.Len(t, got.ProvisionedResources.Resources, 2)
	fp.lk.Lock()
	require.Len(t, fp.calls, 2)
	fp.lk.Unlock()
}

func TestProvisionEmptyManifest(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))
	m := NewManager(s)

	p := provisioningProcess(t, s)
	m.Provision(ctx, p)

	waitForState(t, s, p.ID, transfer.StateProvisioned)
}

func TestProvisionNoProvisioner(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))
	m := NewManager(s)

	p := provisioningProcess(t, s, transfer.ResourceDefinition{ID: "d1", Type: "object-store"})
	m.Provision(ctx, p)

	got := waitForState(t, s, p.ID, transfer.StateError)
	require.Contains(t, got.ErrorDetail, "no provisioner for resource type object-store")
}

func TestProvisionerError(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	m := NewManager(s)
	m.Register(&fakeProvisioner{resourceType: "file", err: xerrors.New("disk full")})

	p := provisioningProcess(t, s, transfer.ResourceDefinition{ID: "d1", Type: "file"})
	m.Provision(ctx, p)

	got := waitForState(t, s, p.ID, transfer.StateError)
	require.Contains(t, got.ErrorDetail, "disk full")
}

func TestProvisionErrorResource(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	m := NewManager(s)
	m.Register(&fakeProvisioner{resourceType: "file", errResource: true})

	p := provisioningProcess(t, s, transfer.ResourceDefinition{ID: "d1", Type: "file"})
	m.Provision(ctx, p)

	got := waitForState(t, s, p.ID, transfer.StateError)
	require.Contains(t, got.ErrorDetail, "remote side refused")
}

func TestProvisionNotify(t *testing.T) {
	ctx := context.Background()
	s := store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	m := NewManager(s)
	m.Register(&fakeProvisioner{resourceType: "file"})

	var lk sync.Mutex
	var events []transfer.Event
	m.SetNotify(func(e transfer.Event, p transfer.TransferProcess) {
		lk.Lock()
		events = append(events, e)
		lk.Unlock()
	})

	p := provisioningProcess(t, s, transfer.ResourceDefinition{ID: "d1", Type: "file"})
	m.Provision(ctx, p)

	waitForState(t, s, p.ID, transfer.StateProvisioned)
	require.Eventually(t, func() bool {
		lk.Lock()
		defer lk.Unlock()
		return len(events) == 1 && events[0] == transfer.EventProvisioned
	}, 5*time.Second, 10*time.Millisecond)
}
