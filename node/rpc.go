package node

import (
	"context"
	"net"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/dataspace-labs/go-transfermgr/api"
	"github.com/dataspace-labs/go-transfermgr/metrics"
	"github.com/dataspace-labs/go-transfermgr/metrics/proxy"
)

var rpclog = logging.Logger("rpc")

// TransferMgrHandler returns the transfer manager api handler, to be mounted
// as-is on the server. Alongside the jsonrpc endpoint it carries the
// prometheus exporter and the pprof handlers.
func TransferMgrHandler(a api.TransferMgr, opts ...jsonrpc.ServerOption) (http.Handler, error) {
	m := mux.NewRouter()

	opts = append(opts, jsonrpc.WithServerErrors(api.RPCErrors))
	rpcServer := jsonrpc.NewServer(opts...)
	rpcServer.Register("TransferMgr", proxy.MetricedTransferMgrAPI(a))
	m.Handle("/rpc/v0", rpcServer)

	registry := promclient.DefaultRegisterer.(*promclient.Registry)
	exporter, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: "transferd",
	})
	if err != nil {
		return nil, xerrors.Errorf("could not create the prometheus stats exporter: %w", err)
	}
	m.Handle("/debug/metrics", exporter)
	m.PathPrefix("/").Handler(http.DefaultServeMux) // pprof

	return m, nil
}

// ServeRPC serves an HTTP handler over the supplied listen multiaddr.
//
// This function spawns a goroutine to run the server, and returns
// immediately. It returns the stop function to be called to terminate the
// endpoint.
//
// The supplied ID is used in tracing, by inserting a tag in the context.
func ServeRPC(h http.Handler, id string, addr multiaddr.Multiaddr) (StopFunc, error) {
	// Start listening to the addr; if invalid or occupied, we will fail early.
	lst, err := manet.Listen(addr)
	if err != nil {
		return nil, xerrors.Errorf("could not listen: %w", err)
	}

	// Instantiate the server and start listening.
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext: func(listener net.Listener) context.Context {
			ctx, _ := tag.New(context.Background(), tag.Upsert(metrics.APIInterface, id))
			return ctx
		},
	}

	go func() {
		err = srv.Serve(manet.NetListener(lst))
		if err != http.ErrServerClosed {
			rpclog.Warnf("rpc server failed: %s", err)
		}
	}()

	return srv.Shutdown, nil
}
