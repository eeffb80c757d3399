package main

import (
	"github.com/urfave/cli"

	"github.com/darinkishore/hurry/uploader"
)

// workerCommand is the hidden re-exec target daemonize.Run spawns from
// EnsureWorker; it is never invoked directly by a user (spec.md §4.6).
var workerCommand = cli.Command{
	Name:   "__worker",
	Hidden: true,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "cache-dir", Required: true},
	},
	Action: func(c *cli.Context) error {
		cacheDir := c.String("cache-dir")

		cr, err := newCore()
		if err != nil {
			return err
		}

		w := uploader.NewWorker(cr.registry, cr.cas, cr.tenant)
		return uploader.RunWorkerProcess(cacheDir, w)
	},
}
