package itests

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataspace-labs/go-transfermgr/api"
	"github.com/dataspace-labs/go-transfermgr/api/client"
	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/itests/kit"
	"github.com/dataspace-labs/go-transfermgr/node"
	"github.com/dataspace-labs/go-transfermgr/node/impl"
	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/dispatch"
)

// TestAPI drives a transfer through the json-rpc control surface: a
// connector served over websockets, a second one as the remote party.
func TestAPI(t *testing.T) {
	kit.QuietTransferLogs()
	ctx := context.Background()

	provider := kit.NewConnector(t)
	local := kit.NewConnector(t)

	shutdownChan := make(chan struct{}, 1)
	handler, err := node.TransferMgrHandler(&impl.TransferMgrAPI{
		Manager:      local.Mgr,
		Host:         local.Host,
		ShutdownChan: shutdownChan,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	addr := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/rpc/v0"
	rpc, closer, err := client.NewTransferMgrRPC(ctx, addr, nil)
	require.NoError(t, err)
	t.Cleanup(closer)

	v, err := rpc.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, build.APIVersion, v.APIVersion)
	require.Contains(t, v.Version, build.BuildVersion)

	id, err := rpc.ID(ctx)
	require.NoError(t, err)
	require.Equal(t, local.Host.ID(), id)

	ai, err := rpc.NetAddrsListen(ctx)
	require.NoError(t, err)
	require.Equal(t, local.Host.ID(), ai.ID)
	require.NotEmpty(t, ai.Addrs)

	// unknown ids come back as the registered typed error
	_, err = rpc.GetProcess(ctx, "no-such-process")
	require.Error(t, err)
	require.True(t, api.ErrorIsIn(err, []error{&api.ErrProcessNotFound{}}))

	res, err := rpc.InitiateClientTransfer(ctx, &transfer.DataRequest{
		ConnectorAddress: provider.Addr(t),
		Protocol:         dispatch.Libp2pProtocol,
		DatasetID:        "dataset-api",
	})
	require.NoError(t, err)
	require.Equal(t, transfer.OK, res.Status)

	p := waitForStateRPC(t, ctx, rpc, res.ID, transfer.StateRequestedAck)
	require.Equal(t, transfer.Client, p.Type)

	procs, err := rpc.ListProcesses(ctx, transfer.StateRequestedAck, 10)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	require.Equal(t, res.ID, procs[0].ID)

	require.NoError(t, rpc.Shutdown(ctx))
	select {
	case <-shutdownChan:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not signalled")
	}
}

func waitForStateRPC(t *testing.T, ctx context.Context, rpc api.TransferMgr, id string, want transfer.ProcessState) *transfer.TransferProcess {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		p, err := rpc.GetProcess(ctx, id)
		require.NoError(t, err)
		if p.State == want {
			return p
		}
		if p.State.Terminal() {
			t.Fatalf("process %s reached %s (detail %q) while waiting for %s", id, p.State, p.ErrorDetail, want)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for process %s to reach %s, currently %s", id, want, p.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
