package transferimpl

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/network"
)

// inboundRequestTimeout bounds the handling of one inbound request stream.
const inboundRequestTimeout = 30 * time.Second

var _ network.Receiver = (*Manager)(nil)

// HandleRequests registers the manager as the inbound request handler on
// the given transfer network.
func (m *Manager) HandleRequests(net network.TransferNetwork) error {
	return net.SetDelegate(m)
}

// HandleRequestStream services one inbound request stream from a remote
// connector, turning its transfer request into a provider process.
func (m *Manager) HandleRequestStream(s network.RequestStream) {
	defer s.Close() // nolint:errcheck

	req, err := s.ReadRequest()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundRequestTimeout)
	defer cancel()

	resp := m.handleInbound(ctx, s.RemotePeer(), req)
	if err := s.WriteResponse(resp); err != nil {
		log.Warnw("writing transfer response", "request", req.RequestID, "peer", s.RemotePeer(), "err", err)
	}
}

func (m *Manager) handleInbound(ctx context.Context, from peer.ID, req network.TransferRequest) network.TransferResponse {
	if req.RequestID == "" || req.DatasetID == "" {
		return network.TransferResponse{Message: "transfer request is missing its request or dataset id"}
	}

	// a redelivered request for a process we already track is
	// acknowledged with the existing process
	existing, err := m.store.GetForRequestID(ctx, req.RequestID)
	if err == nil {
		log.Debugw("acknowledging known transfer request", "request", req.RequestID, "process", existing.ID, "peer", from)
		return network.TransferResponse{Accepted: true, ProcessID: existing.ID}
	}
	if !xerrors.Is(err, transfer.ErrProcessNotFound) {
		log.Errorw("looking up inbound transfer request", "request", req.RequestID, "err", err)
		return network.TransferResponse{Message: "failed to look up request"}
	}

	resp, err := m.InitiateProviderRequest(ctx, &transfer.DataRequest{
		ID:               req.RequestID,
		Protocol:         req.Protocol,
		ConnectorID:      req.ConnectorID,
		DatasetID:        req.DatasetID,
		Destination:      req.Destination,
		ManagedResources: req.ManagedResources,
	})
	if err != nil {
		log.Warnw("refusing inbound transfer request", "request", req.RequestID, "peer", from, "err", err)
		return network.TransferResponse{Message: err.Error()}
	}

	log.Infow("accepted inbound transfer request", "request", req.RequestID, "process", resp.ID, "peer", from)
	return network.TransferResponse{Accepted: true, ProcessID: resp.ID}
}
