package itests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataspace-labs/go-transfermgr/itests/kit"
	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/dispatch"
	"github.com/dataspace-labs/go-transfermgr/transfer/provision"
)

// TestTransferCycle drives a full client/provider exchange over real
// libp2p streams: intake on the client, provisioning of the staging
// directory, dispatch to the provider, provider-side process creation and
// data flow initiation.
func TestTransferCycle(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	provider := kit.NewConnector(t)
	client := kit.NewConnector(t)

	dest := filepath.Join(t.TempDir(), "staging", "object.bin")
	res, err := client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ConnectorAddress: provider.Addr(t),
		ConnectorID:      "provider-connector",
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-1",
		Destination: &transfer.DataAddress{
			Type:       provision.FileResourceType,
			Properties: map[string]string{"path": dest},
		},
		ManagedResources: true,
	})
	require.NoError(t, err)
	require.Equal(t, transfer.OK, res.Status)
	require.NotEmpty(t, res.ID)

	p := client.WaitForState(t, res.ID, transfer.StateRequestedAck)
	require.Equal(t, transfer.Client, p.Type)
	require.NotNil(t, p.ResourceManifest)
	require.Len(t, p.ResourceManifest.Definitions, 1)
	require.Empty(t, p.ErrorDetail)

	// the client's staging directory was provisioned
	_, err = os.Stat(filepath.Dir(dest))
	require.NoError(t, err)

	// the provider derived its own process from the wire request and
	// started the data flow
	pp := provider.WaitForRequestState(t, p.DataRequest.ID, transfer.StateInProgress)
	require.Equal(t, transfer.Provider, pp.Type)
	require.NotNil(t, pp.ResourceManifest)

	flows := provider.Flows.Initiated()
	require.Len(t, flows, 1)
	require.Equal(t, "dataset-1", flows[0].DatasetID)
	require.Equal(t, pp.ID, flows[0].ProcessID)

	// nothing on the client side was handed to its flow manager
	require.Empty(t, client.Flows.Initiated())
}

// TestTransferRefused checks that a provider refusal surfaces as a
// terminal ERROR on the client process, refusal message included.
func TestTransferRefused(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	provider := kit.NewConnector(t)
	client := kit.NewConnector(t)

	// no dataset id: the provider refuses the request on arrival
	res, err := client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ConnectorAddress: provider.Addr(t),
		Protocol:         dispatch.Libp2pProtocol,
	})
	require.NoError(t, err)

	p := client.WaitForState(t, res.ID, transfer.StateError)
	require.Contains(t, p.ErrorDetail, "refused")

	procs, err := provider.Store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, procs)
}

// TestTransferUnknownProtocol checks that a request carrying a protocol no
// dispatcher serves fails its process instead of wedging the loop.
func TestTransferUnknownProtocol(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	client := kit.NewConnector(t)

	res, err := client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ConnectorAddress: "/ip4/127.0.0.1/tcp/1/p2p/12D3KooWGU8C1mFsEtz4bXmHUH3kQTnQnxVy8cigwGV94qCpYJw7",
		Protocol:         "carrier-pigeon",
		DatasetID:        "dataset-1",
	})
	require.NoError(t, err)

	p := client.WaitForState(t, res.ID, transfer.StateError)
	require.Contains(t, p.ErrorDetail, "no dispatcher for protocol")

	// the loop survived the failure and still accepts work
	_, err = client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ConnectorAddress: client.Addr(t),
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-2",
	})
	require.NoError(t, err)
}

// TestTransferUnreachableConnector checks that exhausting stream-open
// retries against a dead address fails the process with detail.
func TestTransferUnreachableConnector(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	client := kit.NewConnector(t)

	res, err := client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ConnectorAddress: "/ip4/127.0.0.1/tcp/1/p2p/12D3KooWGU8C1mFsEtz4bXmHUH3kQTnQnxVy8cigwGV94qCpYJw7",
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-1",
	})
	require.NoError(t, err)

	p := client.WaitForState(t, res.ID, transfer.StateError)
	require.NotEmpty(t, p.ErrorDetail)
}

// TestRecoverFromStore seeds the store with a provisioned provider process
// before the manager ever runs, the shape the store has after a crash
// between provisioning completion and dispatch. The restarted loop must
// pick it up and initiate its flow.
func TestRecoverFromStore(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	c := kit.NewConnector(t, kit.Unstarted())

	p, err := transfer.NewProcess(transfer.Provider, &transfer.DataRequest{
		ID:        "req-recovered",
		DatasetID: "dataset-1",
	})
	require.NoError(t, err)
	require.NoError(t, c.Store.Create(ctx, p))

	require.NoError(t, p.TransitionProvisioning(&transfer.ResourceManifest{}))
	require.NoError(t, p.TransitionProvisioned())
	require.NoError(t, c.Store.Update(ctx, p))

	c.Start(t)

	got := c.WaitForState(t, p.ID, transfer.StateInProgress)
	require.Equal(t, transfer.Provider, got.Type)
	require.Len(t, c.Flows.Initiated(), 1)
}

// TestRedeliveredRequestAcknowledged checks provider-side dedup: a request
// redelivered with the same correlation id is acknowledged against the
// existing process rather than spawning a second one.
func TestRedeliveredRequestAcknowledged(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	provider := kit.NewConnector(t)
	client := kit.NewConnector(t)

	req := &transfer.DataRequest{
		ID:               "req-dup",
		ConnectorAddress: provider.Addr(t),
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-1",
	}
	res, err := client.Mgr.InitiateClientRequest(ctx, req)
	require.NoError(t, err)
	client.WaitForState(t, res.ID, transfer.StateRequestedAck)
	first := provider.WaitForRequestState(t, "req-dup", transfer.StateInProgress)

	// second client process reuses the correlation id, as a retrying
	// upstream would
	res2, err := client.Mgr.InitiateClientRequest(ctx, &transfer.DataRequest{
		ID:               "req-dup",
		ConnectorAddress: provider.Addr(t),
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-1",
	})
	require.NoError(t, err)
	client.WaitForState(t, res2.ID, transfer.StateRequestedAck)

	// give the provider loop a chance to misbehave before asserting
	time.Sleep(50 * time.Millisecond)

	procs, err := provider.Store.List(ctx)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	require.Equal(t, first.ID, procs[0].ID)
	require.Len(t, provider.Flows.Initiated(), 1)
}

// TestStaleProvisioningTimesOut checks the staleness extension point: a
// process wedged in PROVISIONING past the timeout is failed by the loop.
func TestStaleProvisioningTimesOut(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	c := kit.NewConnector(t, kit.Unstarted(), kit.StaleTimeout(50*time.Millisecond))

	// a definition no provisioner recognizes never completes; seed it
	// directly so no completion can race the check
	p, err := transfer.NewProcess(transfer.Client, &transfer.DataRequest{
		ID:        "req-stale",
		DatasetID: "dataset-1",
	})
	require.NoError(t, err)
	require.NoError(t, c.Store.Create(ctx, p))
	require.NoError(t, p.TransitionProvisioning(&transfer.ResourceManifest{
		Definitions: []transfer.ResourceDefinition{{ID: "d1", Type: "unknowable"}},
	}))
	require.NoError(t, c.Store.Update(ctx, p))

	c.Start(t)

	got := c.WaitForState(t, p.ID, transfer.StateError)
	require.Contains(t, got.ErrorDetail, "no progress")
}
