package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/urfave/cli"
)

var debugCommand = cli.Command{
	Name:  "debug",
	Usage: "diagnostics for the unit cache",
	Subcommands: []cli.Command{
		debugMetadataCommand,
		debugDaemonCommand,
	},
}

var debugMetadataCommand = cli.Command{
	Name:      "metadata",
	Usage:     "dump the file/mtime/exec-bit tree of a directory",
	ArgsUsage: "<dir>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("debug metadata: expected exactly one directory argument", 2)
		}
		root := c.Args().Get(0)

		return godirwalk.Walk(root, &godirwalk.Options{
			Unsorted: false,
			Callback: func(fqn string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				info, err := os.Lstat(fqn)
				if err != nil {
					return nil
				}
				exec := info.Mode()&0o111 != 0
				fmt.Printf("%s\tmtime=%d\texec=%t\n", fqn, info.ModTime().UnixNano(), exec)
				return nil
			},
			ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
				fmt.Fprintln(os.Stderr, "debug metadata:", err)
				return godirwalk.SkipNode
			},
		})
	},
}

var debugDaemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "introspect the background upload worker",
	Subcommands: []cli.Command{
		{
			Name: "status",
			Action: func(c *cli.Context) error {
				cr, err := newCore()
				if err != nil {
					return cacheDisabledErr(err)
				}
				addr, err := cr.uploader.Endpoint()
				if err != nil {
					fmt.Println("worker not running")
					return nil
				}
				idle, err := cr.uploader.Status()
				if err != nil {
					return fmt.Errorf("debug daemon status: %w", err)
				}
				fmt.Printf("worker listening on %s, idle for %s\n", addr, idle)
				return nil
			},
		},
		{
			Name: "context",
			Action: func(c *cli.Context) error {
				cr, err := newCore()
				if err != nil {
					return cacheDisabledErr(err)
				}
				fmt.Printf("cache dir:  %s\n", cr.cfg.CacheDir)
				fmt.Printf("api url:    %s\n", cr.cfg.APIURL)
				fmt.Printf("tenant:     %s\n", cr.tenant)
				fmt.Printf("host:       %s\n", cr.host.TargetTriple)
				fmt.Printf("host libc:  %s %s\n", cr.host.LibcFamily, cr.host.LibcVersion)
				fmt.Printf("codec:      %s\n", cr.cfg.Codec)
				return nil
			},
		},
		{
			Name:  "log",
			Usage: "print the worker's log file",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "follow, f", Usage: "keep printing new lines as they are appended"},
			},
			Action: func(c *cli.Context) error {
				cr, err := newCore()
				if err != nil {
					return cacheDisabledErr(err)
				}
				return printLog(cr.uploader.LogPath(), c.Bool("follow"))
			},
		},
	},
}

func printLog(path string, follow bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("debug daemon log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			fmt.Print(line)
		}
		if err != nil {
			if !follow {
				return nil
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}
