package daemon

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/build"
	lcli "github.com/dataspace-labs/go-transfermgr/cli"
	"github.com/dataspace-labs/go-transfermgr/journal"
	"github.com/dataspace-labs/go-transfermgr/journal/fsjournal"
	"github.com/dataspace-labs/go-transfermgr/metrics"
	"github.com/dataspace-labs/go-transfermgr/node"
	"github.com/dataspace-labs/go-transfermgr/node/config"
	"github.com/dataspace-labs/go-transfermgr/node/impl"
	"github.com/dataspace-labs/go-transfermgr/node/repo"
	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/dispatch"
	"github.com/dataspace-labs/go-transfermgr/transfer/flow"
	transferimpl "github.com/dataspace-labs/go-transfermgr/transfer/impl"
	"github.com/dataspace-labs/go-transfermgr/transfer/network"
	"github.com/dataspace-labs/go-transfermgr/transfer/provision"
	"github.com/dataspace-labs/go-transfermgr/transfer/store"
)

var log = logging.Logger("daemon")

// InitCmd initializes a transferd repo without starting the daemon.
var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Initialize a transferd repo",
	Action: func(cctx *cli.Context) error {
		log.Info("Initializing transferd repo")

		r, err := repo.NewFS(cctx.String("repo"))
		if err != nil {
			return err
		}

		ok, err := r.Exists()
		if err != nil {
			return err
		}
		if ok {
			return xerrors.Errorf("repo at '%s' is already initialized", cctx.String("repo"))
		}

		if err := r.Init(); err != nil {
			return xerrors.Errorf("repo init error: %w", err)
		}

		return nil
	},
}

// Cmd starts the transfer daemon: it opens the repo, assembles the transfer
// manager with its collaborators, and serves the control API until shutdown.
var Cmd = &cli.Command{
	Name:  "run",
	Usage: "Start a transferd daemon process",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "api",
			Usage: "multiaddr the json-rpc api listens on, overrides the config",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, _ := tag.New(lcli.DaemonContext(cctx),
			tag.Insert(metrics.Version, build.BuildVersion),
			tag.Insert(metrics.Commit, build.CurrentCommit),
		)

		// Register all metric views
		if err := view.Register(
			metrics.DefaultViews...,
		); err != nil {
			log.Fatalf("Cannot register the view: %v", err)
		}

		// Set the metric to one so it is published to the exporter
		stats.Record(ctx, metrics.TransferdInfo.M(1))

		r, err := repo.NewFS(cctx.String("repo"))
		if err != nil {
			return xerrors.Errorf("opening fs repo: %w", err)
		}

		if err := r.Init(); err != nil {
			return xerrors.Errorf("repo init error: %w", err)
		}

		lr, err := r.Lock()
		if err != nil {
			return err
		}
		defer lr.Close() //nolint:errcheck

		c, err := lr.Config()
		if err != nil {
			return err
		}
		cfg, ok := c.(*config.Transferd)
		if !ok {
			return xerrors.Errorf("invalid config for repo, got: %T", c)
		}

		de, err := journal.ParseDisabledEvents(cfg.Journal.DisabledEvents)
		if err != nil {
			return xerrors.Errorf("failed to parse disabled events: %w", err)
		}
		j, err := fsjournal.OpenFSJournal(lr, de)
		if err != nil {
			return xerrors.Errorf("failed to open filesystem journal: %w", err)
		}
		defer j.Close() //nolint:errcheck

		mds, err := lr.Datastore(ctx, "metadata")
		if err != nil {
			return err
		}
		st := store.NewStore(mds)

		pk, err := lr.Libp2pIdentity()
		if err != nil {
			return err
		}

		cm, err := connmgr.NewConnManager(
			int(cfg.Libp2p.ConnMgrLow),
			int(cfg.Libp2p.ConnMgrHigh),
			connmgr.WithGracePeriod(time.Duration(cfg.Libp2p.ConnMgrGrace)),
		)
		if err != nil {
			return xerrors.Errorf("setting up connection manager: %w", err)
		}

		h, err := libp2p.New(
			libp2p.Identity(pk),
			libp2p.ListenAddrStrings(cfg.Libp2p.ListenAddresses...),
			libp2p.ConnectionManager(cm),
		)
		if err != nil {
			return xerrors.Errorf("setting up libp2p host: %w", err)
		}
		defer h.Close() //nolint:errcheck

		log.Infow("libp2p host up", "peer", h.ID(), "addrs", h.Addrs())

		net := network.NewFromLibp2pHost(h)

		dispatchers := dispatch.NewRegistry()
		dispatchers.Register(dispatch.NewLibp2pDispatcher(net))

		gens := provision.NewGenerators()
		gens.RegisterClientGenerator(provision.FileDestinationGenerator{})
		gens.RegisterProviderGenerator(provision.FileDestinationGenerator{})

		pm := provision.NewManager(st)
		pm.Register(provision.FileProvisioner{})

		flows := flow.NewManager()
		// data planes are deployment specific; the stock controller records
		// the handoff and leaves the bytes to the destination resource
		flows.Register(flow.ControllerFunc(func(ctx context.Context, req *transfer.DataRequest) error {
			log.Infow("data flow initiated", "request", req.ID, "dataset", req.DatasetID)
			return nil
		}))

		var wait transfer.WaitStrategy
		switch cfg.Transfer.WaitStrategy {
		case "", "fixed":
			wait = transfer.FixedWaitStrategy(time.Duration(cfg.Transfer.PollInterval))
		case "backoff":
			wait = transfer.BackoffWaitStrategy(time.Duration(cfg.Transfer.PollInterval), time.Duration(cfg.Transfer.MaxPollInterval))
		default:
			return xerrors.Errorf("unknown wait strategy %q", cfg.Transfer.WaitStrategy)
		}

		mgr, err := transferimpl.New(transferimpl.Config{
			Store:        st,
			Manifests:    gens,
			Provisioner:  pm,
			Dispatchers:  dispatchers,
			Flows:        flows,
			BatchSize:    cfg.Transfer.BatchSize,
			Wait:         wait,
			Journal:      j,
			StaleTimeout: time.Duration(cfg.Transfer.StaleTimeout),
		})
		if err != nil {
			return xerrors.Errorf("assembling transfer manager: %w", err)
		}
		pm.SetNotify(mgr.Notify)

		if err := mgr.Start(ctx); err != nil {
			return xerrors.Errorf("starting transfer manager: %w", err)
		}

		if err := mgr.HandleRequests(net); err != nil {
			return xerrors.Errorf("registering transfer protocol handler: %w", err)
		}

		apiAddr := cfg.API.ListenAddress
		if cctx.IsSet("api") {
			apiAddr = cctx.String("api")
		}
		endpoint, err := multiaddr.NewMultiaddr(apiAddr)
		if err != nil {
			return xerrors.Errorf("invalid api multiaddr %q: %w", apiAddr, err)
		}
		if err := lr.SetAPIEndpoint(endpoint); err != nil {
			return xerrors.Errorf("writing api endpoint: %w", err)
		}

		shutdownChan := make(chan struct{})

		a := &impl.TransferMgrAPI{
			Manager:      mgr,
			Host:         h,
			ShutdownChan: shutdownChan,
		}

		handler, err := node.TransferMgrHandler(a)
		if err != nil {
			return xerrors.Errorf("failed to instantiate rpc handler: %w", err)
		}

		rpcStopper, err := node.ServeRPC(handler, "transferd", endpoint)
		if err != nil {
			return xerrors.Errorf("failed to start json-rpc endpoint: %w", err)
		}

		log.Infow("transferd up", "api", apiAddr)

		// Monitor for shutdown.
		finishCh := node.MonitorShutdown(shutdownChan,
			node.ShutdownHandler{Component: "rpc server", StopFunc: rpcStopper},
			node.ShutdownHandler{Component: "transfer manager", StopFunc: func(context.Context) error {
				mgr.Stop()
				return nil
			}},
		)
		<-finishCh

		return nil
	},
}
