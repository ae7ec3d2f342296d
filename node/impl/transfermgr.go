package impl

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/api"
	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/transfer"
	transferimpl "github.com/dataspace-labs/go-transfermgr/transfer/impl"
)

// TransferMgrAPI serves a transfer manager over the node control API.
type TransferMgrAPI struct {
	Manager *transferimpl.Manager
	Host    host.Host

	ShutdownChan chan struct{}
}

func (a *TransferMgrAPI) ID(ctx context.Context) (peer.ID, error) {
	return a.Host.ID(), nil
}

func (a *TransferMgrAPI) Version(ctx context.Context) (api.APIVersion, error) {
	return api.APIVersion{
		Version:    build.UserVersion(),
		APIVersion: build.APIVersion,
	}, nil
}

func (a *TransferMgrAPI) NetAddrsListen(ctx context.Context) (peer.AddrInfo, error) {
	return peer.AddrInfo{
		ID:    a.Host.ID(),
		Addrs: a.Host.Addrs(),
	}, nil
}

func (a *TransferMgrAPI) InitiateClientTransfer(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	res, err := a.Manager.InitiateClientRequest(ctx, req)
	return res, mapErr(err)
}

func (a *TransferMgrAPI) InitiateProviderTransfer(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	res, err := a.Manager.InitiateProviderRequest(ctx, req)
	return res, mapErr(err)
}

func (a *TransferMgrAPI) GetProcess(ctx context.Context, id string) (*transfer.TransferProcess, error) {
	p, err := a.Manager.GetProcess(ctx, id)
	return p, mapErr(err)
}

func (a *TransferMgrAPI) ListProcesses(ctx context.Context, state transfer.ProcessState, limit int) ([]*transfer.TransferProcess, error) {
	return a.Manager.ListProcesses(ctx, state, limit)
}

// Shutdown trigger graceful shutdown
func (a *TransferMgrAPI) Shutdown(ctx context.Context) error {
	a.ShutdownChan <- struct{}{}
	return nil
}

// mapErr turns manager sentinels into registered api errors so jsonrpc
// clients get typed values back.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case xerrors.Is(err, transfer.ErrProcessNotFound):
		return &api.ErrProcessNotFound{}
	case xerrors.Is(err, transferimpl.ErrManagerStopped):
		return &api.ErrManagerStopped{}
	default:
		return err
	}
}

var _ api.TransferMgr = &TransferMgrAPI{}
