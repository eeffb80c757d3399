package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var daemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "control the background upload worker",
	Subcommands: []cli.Command{
		{
			Name:  "stop",
			Usage: "ask the background worker to exit cleanly",
			Action: func(c *cli.Context) error {
				cr, err := newCore()
				if err != nil {
					return cacheDisabledErr(err)
				}
				if err := cr.uploader.Stop(); err != nil {
					return fmt.Errorf("daemon stop: %w", err)
				}
				return nil
			},
		},
	},
}
