package network

import (
	"bufio"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dataspace-labs/go-transfermgr/lib/cborutil"
)

type requestStream struct {
	p        peer.ID
	rw       network.Stream
	buffered *bufio.Reader
}

var _ RequestStream = (*requestStream)(nil)

func (s *requestStream) ReadRequest() (TransferRequest, error) {
	var req TransferRequest
	if err := cborutil.ReadCborRPC(s.buffered, &req); err != nil {
		log.Warnw("reading transfer request", "peer", s.p, "error", err)
		return TransferRequest{}, err
	}
	return req, nil
}

func (s *requestStream) WriteRequest(req TransferRequest) error {
	return cborutil.WriteCborRPC(s.rw, &req)
}

func (s *requestStream) ReadResponse() (TransferResponse, error) {
	var resp TransferResponse
	if err := cborutil.ReadCborRPC(s.buffered, &resp); err != nil {
		return TransferResponse{}, err
	}
	return resp, nil
}

func (s *requestStream) WriteResponse(resp TransferResponse) error {
	return cborutil.WriteCborRPC(s.rw, &resp)
}

func (s *requestStream) RemotePeer() peer.ID {
	return s.p
}

func (s *requestStream) Close() error {
	return s.rw.Close()
}
