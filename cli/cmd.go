package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/dataspace-labs/go-transfermgr/api"
	"github.com/dataspace-labs/go-transfermgr/api/client"
	"github.com/dataspace-labs/go-transfermgr/node/repo"
)

var log = logging.Logger("cli")

const (
	metadataTraceContext = "traceContext"
	metadataContext      = "context"
)

// GetAPI opens a connection to the node whose endpoint is recorded in the
// repo's api file.
func GetAPI(ctx *cli.Context) (api.TransferMgr, jsonrpc.ClientCloser, error) {
	r, err := repo.NewFS(ctx.String("repo"))
	if err != nil {
		return nil, nil, err
	}

	ma, err := r.APIEndpoint()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to get api endpoint: %w (is the daemon running?)", err)
	}
	_, addr, err := manet.DialArgs(ma)
	if err != nil {
		return nil, nil, err
	}

	return client.NewTransferMgrRPC(ctx.Context, "ws://"+addr+"/rpc/v0", nil)
}

// DaemonContext returns a context for the daemon process. It does not
// install signal handling; the daemon monitors signals itself.
func DaemonContext(cctx *cli.Context) context.Context {
	if mtCtx, ok := cctx.App.Metadata[metadataTraceContext]; ok {
		return mtCtx.(context.Context)
	}
	return context.Background()
}

// ReqContext returns context for cli execution. Calling it for the first time
// installs SIGTERM handler that will close returned context.
// Not safe for concurrent execution.
func ReqContext(cctx *cli.Context) context.Context {
	if uctx, ok := cctx.App.Metadata[metadataContext]; ok {
		// unchecked cast as if something else is in there
		// it is crash worthy either way
		return uctx.(context.Context)
	}
	var tCtx context.Context

	if mtCtx, ok := cctx.App.Metadata[metadataTraceContext]; ok {
		tCtx = mtCtx.(context.Context)
	} else {
		tCtx = context.Background()
	}

	ctx, done := context.WithCancel(tCtx)
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	return ctx
}

var Commands = []*cli.Command{
	initiateCmd,
	getCmd,
	listCmd,
	netCmd,
	versionCmd,
}
