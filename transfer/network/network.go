package network

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// TransferProtocolID identifies the transfer request protocol.
const TransferProtocolID = protocol.ID("/dspace/transfer/1.0.0")

// RequestStream is a stream for reading and writing requests and responses
// on the transfer protocol.
type RequestStream interface {
	ReadRequest() (TransferRequest, error)
	WriteRequest(TransferRequest) error
	ReadResponse() (TransferResponse, error)
	WriteResponse(TransferResponse) error
	RemotePeer() peer.ID
	Close() error
}

// Receiver handles inbound transfer request streams.
type Receiver interface {
	HandleRequestStream(RequestStream)
}

// TransferNetwork opens transfer request streams to remote connectors and
// accepts inbound ones.
type TransferNetwork interface {
	NewRequestStream(ctx context.Context, to peer.ID) (RequestStream, error)
	SetDelegate(Receiver) error
	StopHandlingRequests() error
	ID() peer.ID
	AddAddrs(peer.ID, []ma.Multiaddr)
}
