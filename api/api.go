package api

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dataspace-labs/go-transfermgr/build"
	"github.com/dataspace-labs/go-transfermgr/transfer"
)

// APIVersion provides various build-time information
type APIVersion struct {
	Version string

	// APIVersion is a binary encoded semver version of the remote api
	APIVersion build.Version
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%s+api%s", v.Version, v.APIVersion.String())
}

// TransferMgr is the control-plane API exposed by a transfer node. It accepts
// transfer requests for both sides of an exchange and reports on the processes
// the node is driving.
type TransferMgr interface {
	// ID returns peerID of libp2p node backing this API
	ID(context.Context) (peer.ID, error)

	// Version provides information about API provider
	Version(context.Context) (APIVersion, error)

	// NetAddrsListen returns listen addresses of the libp2p node backing this API
	NetAddrsListen(context.Context) (peer.AddrInfo, error)

	// InitiateClientTransfer registers an outgoing transfer request and
	// returns the id of the process created to drive it.
	InitiateClientTransfer(context.Context, *transfer.DataRequest) (*transfer.InitiateResponse, error)

	// InitiateProviderTransfer registers an incoming transfer request and
	// returns the id of the process created to drive it.
	InitiateProviderTransfer(context.Context, *transfer.DataRequest) (*transfer.InitiateResponse, error)

	// GetProcess returns the transfer process with the given id.
	GetProcess(context.Context, string) (*transfer.TransferProcess, error)

	// ListProcesses returns up to limit processes waiting in the given state.
	ListProcesses(context.Context, transfer.ProcessState, int) ([]*transfer.TransferProcess, error)

	// Shutdown trigger graceful shutdown
	Shutdown(context.Context) error
}
