package network

import (
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

func init() {
	cbor.RegisterCborType(TransferRequest{})
	cbor.RegisterCborType(TransferResponse{})
}

// TransferRequest asks a provider connector to serve a dataset. RequestID
// is the correlation id; the provider derives its own process from the
// message.
type TransferRequest struct {
	RequestID        string
	ConnectorID      string
	DatasetID        string
	Destination      *transfer.DataAddress
	Protocol         string
	ManagedResources bool
}

// TransferResponse acknowledges or refuses a TransferRequest. ProcessID
// carries the provider-side process id on acceptance.
type TransferResponse struct {
	Accepted  bool
	Message   string
	ProcessID string
}
