package transferimpl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hannahhoward/go-pubsub"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/journal"
	"github.com/dataspace-labs/go-transfermgr/metrics"
	"github.com/dataspace-labs/go-transfermgr/transfer"
)

var log = logging.Logger("transfermgr")

// ErrManagerStopped is returned by intake operations when the manager is
// not running.
var ErrManagerStopped = xerrors.New("transfer manager is not accepting requests")

// DefaultBatchSize caps how many processes a pass pulls per state when the
// config leaves BatchSize unset.
const DefaultBatchSize = 5

// StaleHandler is invoked on the manager loop for every process caught by
// the staleness check. Handlers must advance the process through the store,
// or the same process is reported again on the next pass.
type StaleHandler func(ctx context.Context, p *transfer.TransferProcess) error

// Config assembles the collaborators and tunables of a Manager. Store,
// Manifests, Provisioner, Dispatchers and Flows are required; everything
// else has a default.
type Config struct {
	Store       transfer.ProcessStore
	Manifests   transfer.ManifestGenerator
	Provisioner transfer.ProvisionManager
	Dispatchers transfer.DispatcherRegistry
	Flows       transfer.DataFlowManager

	// BatchSize caps how many processes a single pass pulls per state.
	BatchSize int

	// Wait paces the loop when a pass finds no work. Defaults to a fixed
	// wait of transfer.DefaultPollInterval.
	Wait transfer.WaitStrategy

	// Journal receives process lifecycle events. Defaults to the nil
	// journal.
	Journal journal.Journal

	// StaleTimeout enables the staleness check: processes sitting in
	// PROVISIONING for longer than this are handed to OnStale. Zero
	// disables the check.
	StaleTimeout time.Duration

	// OnStale overrides what happens to a stale process. The default
	// handler moves it to ERROR.
	OnStale StaleHandler
}

// Manager drives transfer processes through their state machine. A single
// worker loop owns all state transitions; provisioning completions reach it
// through the store, dispatch completions through a channel.
type Manager struct {
	store       transfer.ProcessStore
	manifests   transfer.ManifestGenerator
	provisioner transfer.ProvisionManager
	dispatchers transfer.DispatcherRegistry
	flows       transfer.DataFlowManager

	batchSize    int
	wait         transfer.WaitStrategy
	staleTimeout time.Duration
	onStale      StaleHandler

	journal          journal.Journal
	evtTypeLifecycle journal.EventType

	subscribers *pubsub.PubSub

	lk      sync.Mutex
	running bool
	wake    chan struct{}
	updated chan dispatchResult
	stop    chan struct{}
	stopped chan struct{}
}

// dispatchResult reports the outcome of an asynchronous request dispatch
// back to the worker loop.
type dispatchResult struct {
	id  string
	err error
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, xerrors.New("transfer manager requires a process store")
	}
	if cfg.Manifests == nil {
		return nil, xerrors.New("transfer manager requires a manifest generator")
	}
	if cfg.Provisioner == nil {
		return nil, xerrors.New("transfer manager requires a provision manager")
	}
	if cfg.Dispatchers == nil {
		return nil, xerrors.New("transfer manager requires a dispatcher registry")
	}
	if cfg.Flows == nil {
		return nil, xerrors.New("transfer manager requires a data flow manager")
	}
	if cfg.BatchSize < 0 {
		return nil, xerrors.Errorf("negative batch size %d", cfg.BatchSize)
	}
	if cfg.StaleTimeout < 0 {
		return nil, xerrors.Errorf("negative stale timeout %s", cfg.StaleTimeout)
	}

	m := &Manager{
		store:        cfg.Store,
		manifests:    cfg.Manifests,
		provisioner:  cfg.Provisioner,
		dispatchers:  cfg.Dispatchers,
		flows:        cfg.Flows,
		batchSize:    cfg.BatchSize,
		wait:         cfg.Wait,
		staleTimeout: cfg.StaleTimeout,
		onStale:      cfg.OnStale,
		journal:      cfg.Journal,
		subscribers:  pubsub.New(eventDispatcher),
	}
	if m.batchSize == 0 {
		m.batchSize = DefaultBatchSize
	}
	if m.wait == nil {
		m.wait = transfer.FixedWaitStrategy(transfer.DefaultPollInterval)
	}
	if m.journal == nil {
		m.journal = journal.NilJournal()
	}
	if m.onStale == nil {
		m.onStale = m.errorStaleProcess
	}
	m.evtTypeLifecycle = m.journal.RegisterEventType("transfer", "process_lifecycle")

	return m, nil
}

// Start launches the worker loop. Starting a running manager is a no-op; a
// stopped manager can be started again.
func (m *Manager) Start(ctx context.Context) error {
	m.lk.Lock()
	defer m.lk.Unlock()

	if m.running {
		return nil
	}

	m.wake = make(chan struct{}, 1)
	m.updated = make(chan dispatchResult)
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	m.running = true

	go m.run(ctx)

	log.Infow("transfer manager started", "batch", m.batchSize)
	return nil
}

// Stop terminates the worker loop and waits for it to quit. Stopping a
// manager that is not running is a no-op. In-flight dispatches are
// abandoned; their processes stay in REQUESTED.
func (m *Manager) Stop() {
	m.lk.Lock()
	if !m.running {
		m.lk.Unlock()
		return
	}
	m.running = false
	stop, stopped := m.stop, m.stopped
	m.lk.Unlock()

	close(stop)
	<-stopped
	log.Info("transfer manager stopped")
}

// InitiateClientRequest accepts a consumer-side data request and queues a
// client process for it.
func (m *Manager) InitiateClientRequest(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	return m.initiate(ctx, transfer.Client, req)
}

// InitiateProviderRequest accepts a provider-side data request, usually on
// behalf of a remote connector, and queues a provider process for it.
func (m *Manager) InitiateProviderRequest(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	return m.initiate(ctx, transfer.Provider, req)
}

func (m *Manager) initiate(ctx context.Context, t transfer.ProcessType, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	m.lk.Lock()
	running, wake := m.running, m.wake
	m.lk.Unlock()
	if !running {
		return nil, ErrManagerStopped
	}

	if req == nil {
		return nil, xerrors.New("nil data request")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	p, err := transfer.NewProcess(t, req)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, p); err != nil {
		return nil, xerrors.Errorf("tracking new process: %w", err)
	}

	log.Infow("accepted transfer request", "process", p.ID, "type", t, "request", req.ID, "dataset", req.DatasetID)

	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(metrics.ProcessType, t.String()),
		tag.Upsert(metrics.Protocol, req.Protocol),
	}, metrics.ProcessCreated.M(1))

	m.publish(ctx, transfer.EventCreated, *p)

	// nudge the loop; a pending wake already covers this
	select {
	case wake <- struct{}{}:
	default:
	}

	return &transfer.InitiateResponse{ID: p.ID, Status: transfer.OK}, nil
}

// GetProcess returns the tracked process with the given id.
func (m *Manager) GetProcess(ctx context.Context, id string) (*transfer.TransferProcess, error) {
	return m.store.Get(ctx, id)
}

// ListProcesses returns tracked processes in the given state, oldest state
// change first. Passing transfer.StateUnsaved lists across all states, in
// no particular order.
func (m *Manager) ListProcesses(ctx context.Context, state transfer.ProcessState, limit int) ([]*transfer.TransferProcess, error) {
	if state == transfer.StateUnsaved {
		procs, err := m.store.List(ctx)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(procs) > limit {
			procs = procs[:limit]
		}
		return procs, nil
	}
	return m.store.NextForState(ctx, state, limit)
}

// Notify surfaces a process transition performed by a collaborator directly
// against the store to subscribers, metrics and the journal. Wire it as the
// provision manager's completion callback.
func (m *Manager) Notify(evt transfer.Event, p transfer.TransferProcess) {
	// completions arrive from collaborator goroutines with no caller context
	m.publish(context.Background(), evt, p)
}

// ProcessLifecycleEvt is the journal payload recorded for every process
// lifecycle event.
type ProcessLifecycleEvt struct {
	Process string
	Request string
	Type    string
	Event   string
	State   string
	Detail  string `json:",omitempty"`
}

func (m *Manager) publish(ctx context.Context, evt transfer.Event, p transfer.TransferProcess) {
	if err := m.subscribers.Publish(internalEvent{evt: evt, state: p}); err != nil {
		log.Debugw("publishing process event", "process", p.ID, "event", evt, "err", err)
	}

	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(metrics.Event, evt.String()),
		tag.Upsert(metrics.ProcessType, p.Type.String()),
	}, metrics.ProcessEvent.M(1))

	journal.MaybeRecordEvent(m.journal, m.evtTypeLifecycle, func() interface{} {
		var requestID string
		if p.DataRequest != nil {
			requestID = p.DataRequest.ID
		}
		return ProcessLifecycleEvt{
			Process: p.ID,
			Request: requestID,
			Type:    p.Type.String(),
			Event:   evt.String(),
			State:   p.State.String(),
			Detail:  p.ErrorDetail,
		}
	})
}
