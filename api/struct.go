package api

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// TransferMgrStruct implements TransferMgr passing calls to user-provided
// function values.
type TransferMgrStruct struct {
	Internal struct {
		ID      func(context.Context) (peer.ID, error)
		Version func(context.Context) (APIVersion, error)

		NetAddrsListen func(context.Context) (peer.AddrInfo, error)

		InitiateClientTransfer   func(context.Context, *transfer.DataRequest) (*transfer.InitiateResponse, error)
		InitiateProviderTransfer func(context.Context, *transfer.DataRequest) (*transfer.InitiateResponse, error)
		GetProcess               func(context.Context, string) (*transfer.TransferProcess, error)
		ListProcesses            func(context.Context, transfer.ProcessState, int) ([]*transfer.TransferProcess, error)

		Shutdown func(context.Context) error
	}
}

// ID implements TransferMgr.ID
func (c *TransferMgrStruct) ID(ctx context.Context) (peer.ID, error) {
	return c.Internal.ID(ctx)
}

// Version implements TransferMgr.Version
func (c *TransferMgrStruct) Version(ctx context.Context) (APIVersion, error) {
	return c.Internal.Version(ctx)
}

func (c *TransferMgrStruct) NetAddrsListen(ctx context.Context) (peer.AddrInfo, error) {
	return c.Internal.NetAddrsListen(ctx)
}

func (c *TransferMgrStruct) InitiateClientTransfer(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	return c.Internal.InitiateClientTransfer(ctx, req)
}

func (c *TransferMgrStruct) InitiateProviderTransfer(ctx context.Context, req *transfer.DataRequest) (*transfer.InitiateResponse, error) {
	return c.Internal.InitiateProviderTransfer(ctx, req)
}

func (c *TransferMgrStruct) GetProcess(ctx context.Context, id string) (*transfer.TransferProcess, error) {
	return c.Internal.GetProcess(ctx, id)
}

func (c *TransferMgrStruct) ListProcesses(ctx context.Context, state transfer.ProcessState, limit int) ([]*transfer.TransferProcess, error) {
	return c.Internal.ListProcesses(ctx, state, limit)
}

func (c *TransferMgrStruct) Shutdown(ctx context.Context) error {
	return c.Internal.Shutdown(ctx)
}

var _ TransferMgr = &TransferMgrStruct{}
