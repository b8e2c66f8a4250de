package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
)

type accessCmd struct {
	config string
	mode   string
}

func (*accessCmd) Name() string     { return "access" }
func (*accessCmd) Synopsis() string { return "check access to a path inside a root image" }
func (*accessCmd) Usage() string {
	return `access [-config file] [-mode rwx] path

Calls faccessat2 for path as pid 1. An empty mode checks existence only.
`
}

func (c *accessCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "TOML boot configuration")
	f.StringVar(&c.mode, "mode", "", "any of r, w and x")
}

// parseMode turns "rwx" style text into access(2) mode bits.
func parseMode(s string) (uint32, error) {
	var mode uint32
	for _, c := range s {
		switch c {
		case 'r':
			mode |= unix.R_OK
		case 'w':
			mode |= unix.W_OK
		case 'x':
			mode |= unix.X_OK
		case '-':
		default:
			return 0, fmt.Errorf("bad mode character %q", c)
		}
	}
	return mode, nil
}

func (k *kernel) access(path string, mode uint32) error {
	t, err := k.task(k.init)
	if err != nil {
		return err
	}
	p, err := t.putString(path)
	if err != nil {
		return err
	}
	return t.call(unix.SYS_FACCESSAT2, atFdcwd, p, uintptr(mode), 0)
}

func (c *accessCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	mode, err := parseMode(c.mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	k, err := boot(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if err := k.access(f.Arg(0), mode); err != nil {
		fmt.Fprintf(os.Stderr, "access %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Println("ok")
	return subcommands.ExitSuccess
}
