package client

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/dataspace-labs/go-transfermgr/api"
)

// NewTransferMgrRPC creates a new http jsonrpc client.
func NewTransferMgrRPC(ctx context.Context, addr string, requestHeader http.Header, opts ...jsonrpc.Option) (api.TransferMgr, jsonrpc.ClientCloser, error) {
	var res api.TransferMgrStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "TransferMgr",
		[]interface{}{
			&res.Internal,
		},
		requestHeader,
		append([]jsonrpc.Option{jsonrpc.WithErrors(api.RPCErrors)}, opts...)...,
	)

	return &res, closer, err
}
