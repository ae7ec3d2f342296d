package dispatch

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/network"
)

var log = logging.Logger("dispatch")

// Libp2pProtocol is the protocol name requests carry to be routed to the
// libp2p dispatcher.
const Libp2pProtocol = "dspace-libp2p"

// Libp2pDispatcher delivers transfer requests over libp2p streams. The
// connector address must be a multiaddr with a /p2p component.
type Libp2pDispatcher struct {
	net network.TransferNetwork
}

var _ Dispatcher = (*Libp2pDispatcher)(nil)

func NewLibp2pDispatcher(net network.TransferNetwork) *Libp2pDispatcher {
	return &Libp2pDispatcher{net: net}
}

func (d *Libp2pDispatcher) Protocol() string { return Libp2pProtocol }

func (d *Libp2pDispatcher) Send(ctx context.Context, req *transfer.DataRequest) error {
	if req.ConnectorAddress == "" {
		return xerrors.Errorf("request %s has no connector address", req.ID)
	}
	addr, err := ma.NewMultiaddr(req.ConnectorAddress)
	if err != nil {
		return xerrors.Errorf("parsing connector address %q: %w", req.ConnectorAddress, err)
	}
	ai, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return xerrors.Errorf("connector address %q: %w", req.ConnectorAddress, err)
	}

	d.net.AddAddrs(ai.ID, ai.Addrs)
	s, err := d.net.NewRequestStream(ctx, ai.ID)
	if err != nil {
		return xerrors.Errorf("opening stream to %s: %w", ai.ID, err)
	}
	defer s.Close() // nolint:errcheck

	err = s.WriteRequest(network.TransferRequest{
		RequestID:        req.ID,
		ConnectorID:      req.ConnectorID,
		DatasetID:        req.DatasetID,
		Destination:      req.Destination,
		Protocol:         req.Protocol,
		ManagedResources: req.ManagedResources,
	})
	if err != nil {
		return xerrors.Errorf("sending transfer request %s: %w", req.ID, err)
	}

	resp, err := s.ReadResponse()
	if err != nil {
		return xerrors.Errorf("reading response for request %s: %w", req.ID, err)
	}
	if !resp.Accepted {
		return xerrors.Errorf("remote connector refused request %s: %s", req.ID, resp.Message)
	}

	log.Infow("transfer request accepted", "request", req.ID, "remoteProcess", resp.ProcessID)
	return nil
}
