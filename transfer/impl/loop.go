package transferimpl

import (
	"context"
	"fmt"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/metrics"
	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// dispatchTimeout bounds how long a single dispatch attempt may take,
// stream opening and response read included.
const dispatchTimeout = time.Minute

// errProcessMovedOn aborts a store mutation whose process changed state
// between observation and write.
var errProcessMovedOn = xerrors.New("process moved on")

func (m *Manager) run(ctx context.Context) {
	m.lk.Lock()
	stop, wake, updated, stopped := m.stop, m.wake, m.updated, m.stopped
	m.lk.Unlock()

	defer log.Info("transfer manager loop quitting")
	defer close(stopped)

	timerC := build.Clock.After(0)

	for {
		select {
		case <-stop:
			return
		case res := <-updated:
			m.applyDispatchResult(ctx, res)
		case <-wake:
			stats.Record(ctx, metrics.LoopWakeup.M(1))
			timerC = build.Clock.After(m.tick(ctx))
		case <-timerC:
			timerC = build.Clock.After(m.tick(ctx))
		}
	}
}

// tick runs one full pass over the states the loop is responsible for and
// returns the wait before the next one. A pass that did work schedules an
// immediate follow-up, as more work may be waiting behind the batch limit.
func (m *Manager) tick(ctx context.Context) time.Duration {
	start := time.Now()

	worked := m.provisionPass(ctx)
	worked += m.dispatchPass(ctx)
	worked += m.stalePass(ctx)

	stats.Record(ctx, metrics.LoopPassDuration.M(metrics.SinceInMilliseconds(start)))

	if worked > 0 {
		m.wait.Reset()
		return 0
	}
	return m.wait.NextWait()
}

// provisionPass picks up INITIAL processes, resolves their resource
// manifests and hands them to the provision manager.
func (m *Manager) provisionPass(ctx context.Context) int {
	procs, err := m.store.NextForState(ctx, transfer.StateInitial, m.batchSize)
	if err != nil {
		log.Errorw("listing processes awaiting provisioning", "err", err)
		return 0
	}
	m.recordBatch(ctx, transfer.StateInitial, len(procs))

	for _, p := range procs {
		m.startProvisioning(ctx, p)
	}
	return len(procs)
}

func (m *Manager) startProvisioning(ctx context.Context, p *transfer.TransferProcess) {
	if p.DataRequest == nil {
		m.failProcess(ctx, p, "manifest", xerrors.New("process has no data request"))
		return
	}

	// unmanaged transfers carry no resources to provision
	manifest := &transfer.ResourceManifest{}
	if p.DataRequest.ManagedResources {
		var err error
		if p.Type == transfer.Client {
			manifest, err = m.manifests.GenerateClientManifest(ctx, p)
		} else {
			manifest, err = m.manifests.GenerateProviderManifest(ctx, p)
		}
		if err != nil {
			m.failProcess(ctx, p, "manifest", xerrors.Errorf("generating resource manifest: %w", err))
			return
		}
	}

	if err := p.TransitionProvisioning(manifest); err != nil {
		m.failProcess(ctx, p, "transition", err)
		return
	}
	if err := m.store.Update(ctx, p); err != nil {
		log.Errorw("persisting provisioning process", "process", p.ID, "err", err)
		return
	}
	m.publish(ctx, transfer.EventProvisioning, *p)

	m.provisioner.Provision(ctx, p)
}

// dispatchPass picks up PROVISIONED processes. Client processes have their
// request dispatched to the remote connector; provider processes start
// their data flow.
func (m *Manager) dispatchPass(ctx context.Context) int {
	procs, err := m.store.NextForState(ctx, transfer.StateProvisioned, m.batchSize)
	if err != nil {
		log.Errorw("listing provisioned processes", "err", err)
		return 0
	}
	m.recordBatch(ctx, transfer.StateProvisioned, len(procs))

	for _, p := range procs {
		switch p.Type {
		case transfer.Client:
			m.dispatchRequest(ctx, p)
		case transfer.Provider:
			m.startDataFlow(ctx, p)
		default:
			// an untouched process would be re-claimed on every pass
			m.failProcess(ctx, p, "dispatch", xerrors.Errorf("unknown process type %s", p.Type))
		}
	}
	return len(procs)
}

func (m *Manager) dispatchRequest(ctx context.Context, p *transfer.TransferProcess) {
	if err := p.TransitionRequested(); err != nil {
		m.failProcess(ctx, p, "transition", err)
		return
	}
	// REQUESTED must hit the store before the request can reach the wire
	if err := m.store.Update(ctx, p); err != nil {
		log.Errorw("persisting requested process", "process", p.ID, "err", err)
		return
	}
	m.publish(ctx, transfer.EventRequested, *p)

	m.lk.Lock()
	updated, stop := m.updated, m.stop
	m.lk.Unlock()

	id := p.ID
	req := *p.DataRequest
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()

		sendCtx, _ = tag.New(sendCtx, tag.Upsert(metrics.Protocol, req.Protocol))
		done := metrics.Timer(sendCtx, metrics.DispatchDuration)
		err := m.dispatchers.Send(sendCtx, &req)
		done()

		select {
		case updated <- dispatchResult{id: id, err: err}:
		case <-stop:
		}
	}()
}

// applyDispatchResult moves a process out of REQUESTED based on the outcome
// of its dispatch. Results for processes that moved on in the meantime are
// dropped.
func (m *Manager) applyDispatchResult(ctx context.Context, res dispatchResult) {
	p, err := m.store.Get(ctx, res.id)
	if err != nil {
		log.Errorw("loading process for dispatch result", "process", res.id, "err", err)
		return
	}
	if p.State != transfer.StateRequested {
		log.Debugw("dropping dispatch result for process no longer in REQUESTED", "process", res.id, "state", p.State)
		return
	}

	if res.err != nil {
		m.failProcess(ctx, p, "dispatch", res.err)
		return
	}

	if err := p.TransitionRequestAck(); err != nil {
		log.Errorw("acknowledging dispatched process", "process", res.id, "err", err)
		return
	}
	if err := m.store.Update(ctx, p); err != nil {
		log.Errorw("persisting acknowledged process", "process", res.id, "err", err)
		return
	}
	m.publish(ctx, transfer.EventRequestAck, *p)
}

func (m *Manager) startDataFlow(ctx context.Context, p *transfer.TransferProcess) {
	if err := m.flows.InitiateFlow(ctx, p.DataRequest); err != nil {
		m.failProcess(ctx, p, "flow", xerrors.Errorf("initiating data flow: %w", err))
		return
	}

	if err := p.TransitionInProgress(); err != nil {
		m.failProcess(ctx, p, "transition", err)
		return
	}
	if err := m.store.Update(ctx, p); err != nil {
		log.Errorw("persisting in-progress process", "process", p.ID, "err", err)
		return
	}
	m.publish(ctx, transfer.EventInProgress, *p)
}

// stalePass hands processes sitting in PROVISIONING for longer than the
// configured timeout to the stale handler. Disabled unless a timeout is
// set.
func (m *Manager) stalePass(ctx context.Context) int {
	if m.staleTimeout <= 0 {
		return 0
	}

	procs, err := m.store.NextForState(ctx, transfer.StateProvisioning, m.batchSize)
	if err != nil {
		log.Errorw("listing provisioning processes for staleness", "err", err)
		return 0
	}

	cutoff := build.Clock.Now().Add(-m.staleTimeout).UnixNano()
	worked := 0
	for _, p := range procs {
		if p.StateTimestamp > cutoff {
			// oldest first, the rest are younger
			break
		}

		log.Warnw("transfer process stuck in provisioning", "process", p.ID, "since", time.Unix(0, p.StateTimestamp).UTC())
		m.publish(ctx, transfer.EventStale, *p)
		if err := m.onStale(ctx, p); err != nil {
			log.Errorw("handling stale process", "process", p.ID, "err", err)
			continue
		}
		worked++
	}
	return worked
}

// errorStaleProcess is the default stale handler. It moves the process to
// ERROR unless provisioning completed while the check was under way.
func (m *Manager) errorStaleProcess(ctx context.Context, p *transfer.TransferProcess) error {
	observed := p.StateTimestamp
	var snapshot transfer.TransferProcess
	err := m.store.Mutate(ctx, p.ID, func(sp *transfer.TransferProcess) error {
		if sp.State != transfer.StateProvisioning || sp.StateTimestamp != observed {
			return errProcessMovedOn
		}
		if err := sp.TransitionError(fmt.Sprintf("provisioning made no progress for over %s", m.staleTimeout)); err != nil {
			return err
		}
		snapshot = *sp
		return nil
	})
	if xerrors.Is(err, errProcessMovedOn) {
		return nil
	}
	if err != nil {
		return err
	}

	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(metrics.FailureType, "stale"),
		tag.Upsert(metrics.ProcessType, snapshot.Type.String()),
	}, metrics.ProcessFailure.M(1))

	m.publish(ctx, transfer.EventError, snapshot)
	return nil
}

// failProcess moves a process to ERROR with the cause as its detail. A
// failure that cannot be recorded is logged and otherwise dropped; the
// pass moves on to the next process either way.
func (m *Manager) failProcess(ctx context.Context, p *transfer.TransferProcess, kind string, cause error) {
	log.Warnw("transfer process failed", "process", p.ID, "state", p.State, "kind", kind, "err", cause)

	if err := p.TransitionError(cause.Error()); err != nil {
		log.Errorw("moving process to error state", "process", p.ID, "err", err)
		return
	}
	if err := m.store.Update(ctx, p); err != nil {
		log.Errorw("persisting failed process", "process", p.ID, "err", err)
		return
	}

	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(metrics.FailureType, kind),
		tag.Upsert(metrics.ProcessType, p.Type.String()),
	}, metrics.ProcessFailure.M(1))

	m.publish(ctx, transfer.EventError, *p)
}

func (m *Manager) recordBatch(ctx context.Context, state transfer.ProcessState, n int) {
	if n == 0 {
		return
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(metrics.ProcessState, state.String()),
	}, metrics.LoopPassBatch.M(int64(n)))
}
