package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/limits"
)

type rlimitSet struct {
	kind  limits.Kind
	limit limits.Limit
}

// rlimitSets collects repeated -set kind=soft:hard flags.
type rlimitSets []rlimitSet

func (s *rlimitSets) String() string {
	var parts []string
	for _, set := range *s {
		parts = append(parts, set.kind.String()+"="+set.limit.String())
	}
	return strings.Join(parts, ",")
}

func (s *rlimitSets) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("want kind=soft:hard, got %q", v)
	}
	kind, err := limits.ParseKind(name)
	if err != nil {
		return err
	}
	limit, err := limits.ParseLimit(value)
	if err != nil {
		return err
	}
	*s = append(*s, rlimitSet{kind: kind, limit: limit})
	return nil
}

type rlimitCmd struct {
	config string
	pid    int
	sets   rlimitSets
}

func (*rlimitCmd) Name() string     { return "rlimit" }
func (*rlimitCmd) Synopsis() string { return "query or change resource limits with prlimit64" }
func (*rlimitCmd) Usage() string {
	return `rlimit [-config file] [-pid n] [-set kind=soft:hard]... [kind...]

Sets are applied in order, then the named kinds (all kinds when none are
named) are printed. Values are numbers or "unlimited".
`
}

func (c *rlimitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "TOML boot configuration")
	f.IntVar(&c.pid, "pid", 0, "target process; 0 is the caller")
	f.Var(&c.sets, "set", "change a limit, as kind=soft:hard (repeatable)")
}

func toRlimit(l limits.Limit) unix.Rlimit {
	return unix.Rlimit{Cur: l.Soft, Max: l.Hard}
}

// prlimit calls prlimit64 as pid 1. A nil newLimit only queries.
func (k *kernel) prlimit(pid int, kind limits.Kind, newLimit *limits.Limit) (limits.Limit, error) {
	t, err := k.task(k.init)
	if err != nil {
		return limits.Limit{}, err
	}
	old, err := scratch[unix.Rlimit](t)
	if err != nil {
		return limits.Limit{}, err
	}
	var newAddr uintptr
	if newLimit != nil {
		buf, err := scratch[unix.Rlimit](t)
		if err != nil {
			return limits.Limit{}, err
		}
		if err := buf.Store(t.proc.Memory, toRlimit(*newLimit)); err != nil {
			return limits.Limit{}, err
		}
		newAddr = uintptr(buf.Addr)
	}
	if err := t.call(unix.SYS_PRLIMIT64, uintptr(pid), uintptr(kind), newAddr, uintptr(old.Addr)); err != nil {
		return limits.Limit{}, err
	}
	rl, err := old.Load(t.proc.Memory)
	if err != nil {
		return limits.Limit{}, err
	}
	return limits.Limit{Soft: rl.Cur, Hard: rl.Max}, nil
}

func (c *rlimitCmd) run(k *kernel, kinds []limits.Kind, out io.Writer) error {
	for _, set := range c.sets {
		old, err := k.prlimit(c.pid, set.kind, &set.limit)
		if err != nil {
			return fmt.Errorf("setting %v: %w", set.kind, err)
		}
		fmt.Fprintf(out, "%-10s %s -> %s\n", set.kind, old, set.limit)
	}
	for _, kind := range kinds {
		cur, err := k.prlimit(c.pid, kind, nil)
		if err != nil {
			return fmt.Errorf("getting %v: %w", kind, err)
		}
		fmt.Fprintf(out, "%-10s %s\n", kind, cur)
	}
	return nil
}

func (c *rlimitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var kinds []limits.Kind
	for _, name := range f.Args() {
		kind, err := limits.ParseKind(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 && len(c.sets) == 0 {
		for k := limits.Kind(0); int(k) < limits.NumKinds; k++ {
			kinds = append(kinds, k)
		}
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
	if err := c.run(k, kinds, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
