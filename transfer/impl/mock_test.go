package transferimpl

import (
	"context"
	"sync"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/store"
)

var xerrNoManifest = xerrors.New("no manifest for dataset")

func mockClock(t *testing.T) *clock.Mock {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(time.Hour)
	prev := build.Clock
	build.Clock = mock
	t.Cleanup(func() {
		build.Clock = prev
	})
	return mock
}

type fakeManifests struct {
	mu            sync.Mutex
	definitions   []transfer.ResourceDefinition
	clientErr     error
	providerErr   error
	failDataset   string
	clientCalls   int
	providerCalls int
}

func (f *fakeManifests) GenerateClientManifest(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientCalls++
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return f.manifestFor(p)
}

func (f *fakeManifests) GenerateProviderManifest(ctx context.Context, p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerCalls++
	if f.providerErr != nil {
		return nil, f.providerErr
	}
	return f.manifestFor(p)
}

func (f *fakeManifests) manifestFor(p *transfer.TransferProcess) (*transfer.ResourceManifest, error) {
	if f.failDataset != "" && p.DataRequest.DatasetID == f.failDataset {
		return nil, xerrNoManifest
	}
	return &transfer.ResourceManifest{Definitions: f.definitions}, nil
}

// fakeProvisioner optionally completes provisioning synchronously inside
// Provision, through the store like the real provision manager does.
type fakeProvisioner struct {
	store  transfer.ProcessStore
	notify func(transfer.Event, transfer.TransferProcess)
	auto   bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvisioner) Provision(ctx context.Context, p *transfer.TransferProcess) {
	f.mu.Lock()
	f.calls = append(f.calls, p.ID)
	auto := f.auto
	f.mu.Unlock()

	if !auto {
		return
	}
	f.complete(ctx, p.ID)
}

func (f *fakeProvisioner) complete(ctx context.Context, id string) {
	var snapshot transfer.TransferProcess
	if err := f.store.Mutate(ctx, id, func(sp *transfer.TransferProcess) error {
		if err := sp.TransitionProvisioned(); err != nil {
			return err
		}
		snapshot = *sp
		return nil
	}); err != nil {
		return
	}
	if f.notify != nil {
		f.notify(transfer.EventProvisioned, snapshot)
	}
}

func (f *fakeProvisioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatchers struct {
	mu   sync.Mutex
	err  error
	sent []transfer.DataRequest

	// onSend, if set, runs inside Send before the outcome is returned
	onSend func(ctx context.Context, req *transfer.DataRequest)
}

func (f *fakeDispatchers) Send(ctx context.Context, req *transfer.DataRequest) error {
	f.mu.Lock()
	f.sent = append(f.sent, *req)
	onSend, err := f.onSend, f.err
	f.mu.Unlock()

	if onSend != nil {
		onSend(ctx, req)
	}
	return err
}

func (f *fakeDispatchers) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeFlows struct {
	mu      sync.Mutex
	err     error
	started []string
}

func (f *fakeFlows) InitiateFlow(ctx context.Context, req *transfer.DataRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, req.ID)
	return nil
}

// recordingWait is a wait strategy that counts how often the loop consults
// and resets it.
type recordingWait struct {
	mu     sync.Mutex
	next   time.Duration
	nexts  int
	resets int
}

func (w *recordingWait) NextWait() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nexts++
	return w.next
}

func (w *recordingWait) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resets++
}

func (w *recordingWait) counts() (nexts, resets int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nexts, w.resets
}

type testEnv struct {
	mock        *clock.Mock
	store       *store.Store
	manifests   *fakeManifests
	provisioner *fakeProvisioner
	dispatchers *fakeDispatchers
	flows       *fakeFlows
	mgr         *Manager
}

func setup(t *testing.T, mut ...func(*Config)) *testEnv {
	t.Helper()

	e := &testEnv{
		mock:        mockClock(t),
		store:       store.NewStore(ds_sync.MutexWrap(ds.NewMapDatastore())),
		manifests:   &fakeManifests{},
		dispatchers: &fakeDispatchers{},
		flows:       &fakeFlows{},
	}
	e.provisioner = &fakeProvisioner{store: e.store, auto: true}

	cfg := Config{
		Store:       e.store,
		Manifests:   e.manifests,
		Provisioner: e.provisioner,
		Dispatchers: e.dispatchers,
		Flows:       e.flows,
		Wait:        transfer.FixedWaitStrategy(time.Second),
	}
	for _, m := range mut {
		m(&cfg)
	}

	mgr, err := New(cfg)
	require.NoError(t, err)
	e.mgr = mgr
	e.provisioner.notify = mgr.Notify

	t.Cleanup(mgr.Stop)
	return e
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mgr.Start(context.Background()))
}

// advance drives the loop by walking the mock clock forward until the
// condition holds.
func (e *testEnv) advance(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.mock.Add(200 * time.Millisecond)
		return cond()
	}, 10*time.Second, 2*time.Millisecond)
}

func (e *testEnv) waitForState(t *testing.T, id string, state transfer.ProcessState) *transfer.TransferProcess {
	t.Helper()
	var p *transfer.TransferProcess
	e.advance(t, func() bool {
		var err error
		p, err = e.store.Get(context.Background(), id)
		return err == nil && p.State == state
	})
	return p
}

func testRequest(dataset string) *transfer.DataRequest {
	return &transfer.DataRequest{
		ConnectorAddress: "/ip4/127.0.0.1/tcp/7777/p2p/12D3KooWEqnTAyrZp4TPDcgMY47s6gDSvxpKKByQcTyoZkNFvGqH",
		Protocol:         "dspace-libp2p",
		ConnectorID:      "connector-a",
		DatasetID:        dataset,
		ManagedResources: true,
		Destination: &transfer.DataAddress{
			Type:       "file",
			Properties: map[string]string{"path": "/tmp/out.bin"},
		},
	}
}

// seedProcess persists a process in INITIAL without going through intake,
// as if it had been accepted on a previous run.
func seedProcess(t *testing.T, e *testEnv, pt transfer.ProcessType, dataset string) *transfer.TransferProcess {
	t.Helper()
	p, err := transfer.NewProcess(pt, testRequest(dataset))
	require.NoError(t, err)
	require.NoError(t, e.store.Create(context.Background(), p))
	return p
}
