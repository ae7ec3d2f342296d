package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var netCmd = &cli.Command{
	Name:  "net",
	Usage: "Inspect the p2p network side of the node",
	Subcommands: []*cli.Command{
		netListen,
		netID,
	},
}

var netListen = &cli.Command{
	Name:  "listen",
	Usage: "List listen addresses",
	Action: func(cctx *cli.Context) error {
		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := ReqContext(cctx)

		addrs, err := apic.NetAddrsListen(ctx)
		if err != nil {
			return err
		}

		for _, addr := range addrs.Addrs {
			fmt.Printf("%s/p2p/%s\n", addr, addrs.ID)
		}
		return nil
	},
}

var netID = &cli.Command{
	Name:  "id",
	Usage: "Get node identity",
	Action: func(cctx *cli.Context) error {
		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		ctx := ReqContext(cctx)

		pid, err := apic.ID(ctx)
		if err != nil {
			return err
		}

		fmt.Println(pid)
		return nil
	},
}
