// Package testutil provides fake network types for testing components
// that speak the transfer protocol without real libp2p hosts.
package testutil

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dataspace-labs/go-transfermgr/transfer/network"
)

// TransferRequestReader is a function that mocks reading a request.
type TransferRequestReader func() (network.TransferRequest, error)

// TransferRequestWriter is a function that mocks writing a request.
type TransferRequestWriter func(network.TransferRequest) error

// TransferResponseReader is a function that mocks reading a response.
type TransferResponseReader func() (network.TransferResponse, error)

// TransferResponseWriter is a function that mocks writing a response.
type TransferResponseWriter func(network.TransferResponse) error

// StreamCloser is a function that mocks closing a stream.
type StreamCloser func() error

// TestRequestStreamParams sets behaviors on a test request stream; any
// field left nil gets a trivial default.
type TestRequestStreamParams struct {
	PeerID         peer.ID
	RequestReader  TransferRequestReader
	RequestWriter  TransferRequestWriter
	ResponseReader TransferResponseReader
	ResponseWriter TransferResponseWriter
	Closer         StreamCloser
}

// TestRequestStream is a fake RequestStream with plugable behaviors.
type TestRequestStream struct {
	p              peer.ID
	requestReader  TransferRequestReader
	requestWriter  TransferRequestWriter
	responseReader TransferResponseReader
	responseWriter TransferResponseWriter
	closer         StreamCloser
}

var _ network.RequestStream = (*TestRequestStream)(nil)

// NewTestRequestStream returns a TestRequestStream with the given params.
func NewTestRequestStream(params TestRequestStreamParams) *TestRequestStream {
	stream := &TestRequestStream{
		p:              params.PeerID,
		requestReader:  TrivialRequestReader,
		requestWriter:  TrivialRequestWriter,
		responseReader: TrivialResponseReader,
		responseWriter: TrivialResponseWriter,
		closer:         func() error { return nil },
	}
	if params.RequestReader != nil {
		stream.requestReader = params.RequestReader
	}
	if params.RequestWriter != nil {
		stream.requestWriter = params.RequestWriter
	}
	if params.ResponseReader != nil {
		stream.responseReader = params.ResponseReader
	}
	if params.ResponseWriter != nil {
		stream.responseWriter = params.ResponseWriter
	}
	if params.Closer != nil {
		stream.closer = params.Closer
	}
	return stream
}

func (s *TestRequestStream) ReadRequest() (network.TransferRequest, error) {
	return s.requestReader()
}

func (s *TestRequestStream) WriteRequest(req network.TransferRequest) error {
	return s.requestWriter(req)
}

func (s *TestRequestStream) ReadResponse() (network.TransferResponse, error) {
	return s.responseReader()
}

func (s *TestRequestStream) WriteResponse(resp network.TransferResponse) error {
	return s.responseWriter(resp)
}

func (s *TestRequestStream) RemotePeer() peer.ID { return s.p }

func (s *TestRequestStream) Close() error { return s.closer() }

// TrivialRequestReader succeeds with an empty request.
func TrivialRequestReader() (network.TransferRequest, error) {
	return network.TransferRequest{}, nil
}

// TrivialRequestWriter succeeds without doing anything.
func TrivialRequestWriter(network.TransferRequest) error { return nil }

// TrivialResponseReader succeeds with an accepting response.
func TrivialResponseReader() (network.TransferResponse, error) {
	return network.TransferResponse{Accepted: true}, nil
}

// TrivialResponseWriter succeeds without doing anything.
func TrivialResponseWriter(network.TransferResponse) error { return nil }

// TestTransferNetworkParams sets behaviors on a test transfer network.
type TestTransferNetworkParams struct {
	PeerID         peer.ID
	StreamProvider func(ctx context.Context, to peer.ID) (network.RequestStream, error)
}

// TestTransferNetwork is a fake TransferNetwork recording delegate and
// address book interactions.
type TestTransferNetwork struct {
	params TestTransferNetworkParams

	lk         sync.Mutex
	delegate   network.Receiver
	addedAddrs map[peer.ID][]ma.Multiaddr
}

var _ network.TransferNetwork = (*TestTransferNetwork)(nil)

// NewTestTransferNetwork returns a TestTransferNetwork with the given
// params.
func NewTestTransferNetwork(params TestTransferNetworkParams) *TestTransferNetwork {
	return &TestTransferNetwork{
		params:     params,
		addedAddrs: map[peer.ID][]ma.Multiaddr{},
	}
}

func (n *TestTransferNetwork) NewRequestStream(ctx context.Context, to peer.ID) (network.RequestStream, error) {
	if n.params.StreamProvider != nil {
		return n.params.StreamProvider(ctx, to)
	}
	return NewTestRequestStream(TestRequestStreamParams{PeerID: to}), nil
}

func (n *TestTransferNetwork) SetDelegate(r network.Receiver) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.delegate = r
	return nil
}

func (n *TestTransferNetwork) StopHandlingRequests() error {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.delegate = nil
	return nil
}

// Delegate returns the currently set receiver.
func (n *TestTransferNetwork) Delegate() network.Receiver {
	n.lk.Lock()
	defer n.lk.Unlock()
	return n.delegate
}

func (n *TestTransferNetwork) ID() peer.ID { return n.params.PeerID }

func (n *TestTransferNetwork) AddAddrs(p peer.ID, addrs []ma.Multiaddr) {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.addedAddrs[p] = append(n.addedAddrs[p], addrs...)
}

// AddedAddrs returns the addresses recorded for a peer.
func (n *TestTransferNetwork) AddedAddrs(p peer.ID) []ma.Multiaddr {
	n.lk.Lock()
	defer n.lk.Unlock()
	return n.addedAddrs[p]
}
