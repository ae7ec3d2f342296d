package kit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/dispatch"
	transferimpl "github.com/dataspace-labs/go-transfermgr/transfer/impl"
	"github.com/dataspace-labs/go-transfermgr/transfer/network"
	"github.com/dataspace-labs/go-transfermgr/transfer/provision"
	"github.com/dataspace-labs/go-transfermgr/transfer/store"
)

// Connector is a full in-process transfer connector: a libp2p host on the
// loopback interface, an in-memory process store and a manager assembled
// from the stock collaborators. Two connectors in one test talk over real
// streams.
type Connector struct {
	Host  host.Host
	Mgr   *transferimpl.Manager
	Store *store.Store
	Net   network.TransferNetwork
	Flows *FlowRecorder
}

type connectorOpts struct {
	batchSize int
	start     bool
	stale     time.Duration
}

// ConnectorOpt customizes a test connector.
type ConnectorOpt func(*connectorOpts)

// Unstarted leaves the manager stopped so the test can seed the store
// before the loop runs. Call Start when ready.
func Unstarted() ConnectorOpt {
	return func(o *connectorOpts) { o.start = false }
}

// BatchSize caps how many processes a poll pass claims.
func BatchSize(n int) ConnectorOpt {
	return func(o *connectorOpts) { o.batchSize = n }
}

// StaleTimeout enables the provisioning staleness check.
func StaleTimeout(d time.Duration) ConnectorOpt {
	return func(o *connectorOpts) { o.stale = d }
}

// NewConnector assembles a connector the way the daemon does, with test
// pacing, and tears it down with the test.
func NewConnector(t *testing.T, opts ...ConnectorOpt) *Connector {
	o := connectorOpts{start: true}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	st := store.NewStore(dssync.MutexWrap(datastore.NewMapDatastore()))

	net := network.NewFromLibp2pHost(h,
		network.RetryParameters(time.Millisecond, 100*time.Millisecond, 3, 2))

	dispatchers := dispatch.NewRegistry()
	dispatchers.Register(dispatch.NewLibp2pDispatcher(net))

	gens := provision.NewGenerators()
	gens.RegisterClientGenerator(provision.FileDestinationGenerator{})
	gens.RegisterProviderGenerator(provision.FileDestinationGenerator{})

	pm := provision.NewManager(st)
	pm.Register(provision.FileProvisioner{})

	flows := &FlowRecorder{}

	mgr, err := transferimpl.New(transferimpl.Config{
		Store:        st,
		Manifests:    gens,
		Provisioner:  pm,
		Dispatchers:  dispatchers,
		Flows:        flows,
		BatchSize:    o.batchSize,
		Wait:         transfer.FixedWaitStrategy(10 * time.Millisecond),
		StaleTimeout: o.stale,
	})
	require.NoError(t, err)
	pm.SetNotify(mgr.Notify)

	require.NoError(t, mgr.HandleRequests(net))

	c := &Connector{Host: h, Mgr: mgr, Store: st, Net: net, Flows: flows}
	if o.start {
		c.Start(t)
	}
	return c
}

// Start launches the manager loop and stops it with the test.
func (c *Connector) Start(t *testing.T) {
	require.NoError(t, c.Mgr.Start(context.Background()))
	t.Cleanup(c.Mgr.Stop)
}

// Addr returns the connector's dialable multiaddr, /p2p component
// included, as carried in a data request's ConnectorAddress.
func (c *Connector) Addr(t *testing.T) string {
	t.Helper()
	addrs := c.Host.Addrs()
	require.NotEmpty(t, addrs)
	return fmt.Sprintf("%s/p2p/%s", addrs[0], c.Host.ID())
}

// WaitForState polls until the process reaches the wanted state and
// returns it. Reaching a different terminal state fails the test.
func (c *Connector) WaitForState(t *testing.T, id string, want transfer.ProcessState) *transfer.TransferProcess {
	t.Helper()
	p, err := c.waitFor(t, want, func(ctx context.Context) (*transfer.TransferProcess, error) {
		return c.Store.Get(ctx, id)
	})
	require.NoError(t, err)
	return p
}

// WaitForRequestState polls until the process tracking the given request
// correlation id exists and reaches the wanted state.
func (c *Connector) WaitForRequestState(t *testing.T, requestID string, want transfer.ProcessState) *transfer.TransferProcess {
	t.Helper()
	p, err := c.waitFor(t, want, func(ctx context.Context) (*transfer.TransferProcess, error) {
		return c.Store.GetForRequestID(ctx, requestID)
	})
	require.NoError(t, err)
	return p
}

func (c *Connector) waitFor(t *testing.T, want transfer.ProcessState, load func(context.Context) (*transfer.TransferProcess, error)) (*transfer.TransferProcess, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		p, err := load(ctx)
		switch {
		case err != nil && !xerrors.Is(err, transfer.ErrProcessNotFound):
			return nil, err
		case err == nil && p.State == want:
			return p, nil
		case err == nil && p.State.Terminal() && p.State != want:
			return nil, xerrors.Errorf("process %s reached terminal state %s (detail %q) while waiting for %s",
				p.ID, p.State, p.ErrorDetail, want)
		}

		select {
		case <-ctx.Done():
			return nil, xerrors.Errorf("timed out waiting for state %s", want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// FlowRecorder is a DataFlowManager that records every initiated flow.
// Setting Err makes initiation fail.
type FlowRecorder struct {
	lk   sync.Mutex
	Err  error
	reqs []transfer.DataRequest
}

var _ transfer.DataFlowManager = (*FlowRecorder)(nil)

func (f *FlowRecorder) InitiateFlow(ctx context.Context, req *transfer.DataRequest) error {
	f.lk.Lock()
	defer f.lk.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.reqs = append(f.reqs, *req)
	return nil
}

// Initiated returns the flows started so far.
func (f *FlowRecorder) Initiated() []transfer.DataRequest {
	f.lk.Lock()
	defer f.lk.Unlock()
	out := make([]transfer.DataRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}
