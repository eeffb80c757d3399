// Command hurry wraps a Rust-style builder invocation, restoring and
// saving compilation units through the unit cache around it (spec.md §6).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/hlog"
)

func main() {
	hlog.Init()

	app := cli.NewApp()
	app.Name = "hurry"
	app.Usage = "cache-accelerated build wrapper"
	app.Version = "0.1.0"

	app.Commands = []cli.Command{
		buildCommand,
		cacheCommand,
		daemonCommand,
		debugCommand,
		workerCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hurry:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *cmn.PlannerError:
		return cmn.ExitPlanFailed
	case *cmn.LockContentionError:
		return cmn.ExitLockContention
	default:
		return 1
	}
}
