package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"
)

var cacheCommand = cli.Command{
	Name:  "cache",
	Usage: "manage cached unit state",
	Subcommands: []cli.Command{
		cacheResetCommand,
		cacheStatsCommand,
	},
}

var cacheResetCommand = cli.Command{
	Name:  "reset",
	Usage: "drop this tenant's cached units",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "remote", Usage: "also drop the tenant's units from the remote registry, not just the local cache"},
		cli.BoolFlag{Name: "yes", Usage: "skip the confirmation prompt"},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("remote") && !c.Bool("yes") {
			if !confirm(fmt.Sprintf("this will delete ALL cached units for this tenant from the remote registry, proceed?")) {
				return cli.NewExitError("aborted", 1)
			}
		}
		cr, err := newCore()
		if err != nil {
			return cacheDisabledErr(err)
		}
		return cr.registry.Delete(context.Background(), cr.tenant, c.Bool("remote"))
	},
}

var cacheStatsCommand = cli.Command{
	Name:  "stats",
	Usage: "report the cache directory, tenant and host facts (no sizes, entry counts or worker status)",
	Action: func(c *cli.Context) error {
		cr, err := newCore()
		if err != nil {
			return cacheDisabledErr(err)
		}
		fmt.Printf("cache dir:  %s\n", cr.cfg.CacheDir)
		fmt.Printf("tenant:     %s\n", cr.tenant)
		fmt.Printf("host:       %s (libc %s %s)\n", cr.host.TargetTriple, cr.host.LibcFamily, cr.host.LibcVersion)
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
