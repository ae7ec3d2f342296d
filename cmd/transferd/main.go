package main

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/trace"

	"github.com/dataspace-labs/go-transfermgr/build"
	lcli "github.com/dataspace-labs/go-transfermgr/cli"
	"github.com/dataspace-labs/go-transfermgr/daemon"
	"github.com/dataspace-labs/go-transfermgr/lib/tracing"
	"github.com/dataspace-labs/go-transfermgr/lib/translog"
)

var log = logging.Logger("main")

func main() {
	translog.SetupLogLevels()

	local := []*cli.Command{
		daemon.InitCmd,
		daemon.Cmd,
	}

	jaeger := tracing.SetupJaegerTracing("transferd")
	defer func() {
		if jaeger != nil {
			_ = jaeger.ForceFlush(context.Background())
		}
	}()

	ctx, span := trace.StartSpan(context.Background(), "/cli")
	defer span.End()

	app := &cli.App{
		Name:                 "transferd",
		Usage:                "Dataspace transfer process manager",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				EnvVars: []string{"TRANSFERD_PATH"},
				Value:   "~/.transferd", // TODO: Consider XDG_DATA_HOME
			},
			&cli.StringFlag{
				Name:    "panic-reports",
				EnvVars: []string{"TRANSFERD_PANIC_REPORT_PATH"},
				Hidden:  true,
				Value:   "", // defaults to the repo path
			},
		},

		After: func(cctx *cli.Context) error {
			if r := recover(); r != nil {
				// Generate report in TRANSFERD_PANIC_REPORT_PATH and re-raise panic
				build.GeneratePanicReport(cctx.String("panic-reports"), cctx.String("repo"), cctx.App.Name)
				panic(r)
			}
			return nil
		},

		Commands: append(local, lcli.Commands...),
	}

	app.Setup()
	app.Metadata["traceContext"] = ctx

	for _, cmd := range app.Commands {
		cmd := cmd
		originBefore := cmd.Before
		cmd.Before = func(cctx *cli.Context) error {
			if jaeger != nil {
				_ = jaeger.Shutdown(cctx.Context)
			}
			jaeger = tracing.SetupJaegerTracing("transferd/" + cmd.Name)

			if originBefore != nil {
				return originBefore(cctx)
			}
			return nil
		}
	}

	lcli.RunApp(app)
}
