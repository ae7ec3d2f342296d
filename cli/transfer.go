package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
	"github.com/dataspace-labs/go-transfermgr/transfer/dispatch"
)

var initiateCmd = &cli.Command{
	Name:      "initiate",
	Usage:     "Initiate a transfer process",
	ArgsUsage: "[datasetID]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "type",
			Usage: "side of the transfer to drive (client | provider)",
			Value: "client",
		},
		&cli.StringFlag{
			Name:  "connector-address",
			Usage: "multiaddr of the counterparty connector",
		},
		&cli.StringFlag{
			Name:  "connector-id",
			Usage: "id of the counterparty connector",
		},
		&cli.StringFlag{
			Name:  "protocol",
			Usage: "dispatch protocol for delivering the request",
			Value: dispatch.Libp2pProtocol,
		},
		&cli.StringFlag{
			Name:  "dest-type",
			Usage: "destination type (e.g. file)",
		},
		&cli.StringFlag{
			Name:  "dest-path",
			Usage: "destination path, for file destinations",
		},
		&cli.BoolFlag{
			Name:  "unmanaged",
			Usage: "destination already exists, skip provisioning",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected dataset id as the only argument"))
		}

		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := ReqContext(cctx)

		req := &transfer.DataRequest{
			ConnectorAddress: cctx.String("connector-address"),
			Protocol:         cctx.String("protocol"),
			ConnectorID:      cctx.String("connector-id"),
			DatasetID:        cctx.Args().First(),
			ManagedResources: !cctx.Bool("unmanaged"),
		}
		if path := cctx.String("dest-path"); path != "" {
			dt := cctx.String("dest-type")
			if dt == "" {
				dt = "file"
			}
			req.Destination = &transfer.DataAddress{
				Type:       dt,
				Properties: map[string]string{"path": path},
			}
		} else if dt := cctx.String("dest-type"); dt != "" {
			req.Destination = &transfer.DataAddress{Type: dt}
		}

		var res *transfer.InitiateResponse
		switch cctx.String("type") {
		case "client":
			res, err = apic.InitiateClientTransfer(ctx, req)
		case "provider":
			res, err = apic.InitiateProviderTransfer(ctx, req)
		default:
			return ShowHelp(cctx, xerrors.Errorf("unknown process type %q", cctx.String("type")))
		}
		if err != nil {
			return err
		}

		fmt.Println(res.ID)
		return nil
	},
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "Print a transfer process",
	ArgsUsage: "[processID]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected process id as the only argument"))
		}

		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := ReqContext(cctx)

		p, err := apic.GetProcess(ctx, cctx.Args().First())
		if err != nil {
			return err
		}

		fmt.Printf("Process %s\n", p.ID)
		fmt.Printf("  Type:     %s\n", p.Type)
		fmt.Printf("  State:    %s (changed %d times, last %s)\n", p.State, p.StateCount,
			time.Unix(0, p.StateTimestamp).Format(time.RFC3339))
		if p.DataRequest != nil {
			fmt.Printf("  Dataset:  %s\n", p.DataRequest.DatasetID)
			fmt.Printf("  Protocol: %s\n", p.DataRequest.Protocol)
		}
		if p.ErrorDetail != "" {
			fmt.Printf("  Error:    %s\n", p.ErrorDetail)
		}
		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List processes waiting in a state",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "state",
			Usage: "state to list (INITIAL, PROVISIONING, PROVISIONED, ...)",
			Value: "INITIAL",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "max processes to return",
			Value: 20,
		},
	},
	Action: func(cctx *cli.Context) error {
		state, ok := transfer.ParseState(cctx.String("state"))
		if !ok {
			return ShowHelp(cctx, xerrors.Errorf("unknown state %q", cctx.String("state")))
		}

		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := ReqContext(cctx)

		procs, err := apic.ListProcesses(ctx, state, cctx.Int("limit"))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID\tType\tState\tDataset\n")
		for _, p := range procs {
			dataset := ""
			if p.DataRequest != nil {
				dataset = p.DataRequest.DatasetID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Type, p.State, dataset)
		}
		return w.Flush()
	},
}
