package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dataspace-labs/go-transfermgr/build"
)

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "Print version",
	Action: func(cctx *cli.Context) error {
		apic, closer, err := GetAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := ReqContext(cctx)

		v, err := apic.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Daemon: ", v)
		fmt.Println("Local: ", build.UserVersion())
		return nil
	},
}
