package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/kmrgirish/starry/internal/prettylog"
)

type prettyCmd struct{}

func (*prettyCmd) Name() string     { return "pretty" }
func (*prettyCmd) Synopsis() string { return "format JSON logs from stdin" }
func (*prettyCmd) Usage() string {
	return `pretty < log.json
`
}

func (*prettyCmd) SetFlags(*flag.FlagSet) {}

func (*prettyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := pretty(os.Stdin, prettylog.NewWriter(os.Stdout)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// pretty feeds in to w one line at a time. Lines that are not JSON pass
// through unchanged.
func pretty(in io.Reader, w *prettylog.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		line := append(scanner.Bytes(), '\n')
		if _, err := w.Write(line); err != nil && !errors.Is(err, prettylog.ErrUndecodable) {
			return err
		}
	}
	return scanner.Err()
}
