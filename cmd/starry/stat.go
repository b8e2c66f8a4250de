package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
)

type statCmd struct {
	config string
}

func (*statCmd) Name() string     { return "stat" }
func (*statCmd) Synopsis() string { return "stat paths inside a root image" }
func (*statCmd) Usage() string {
	return `stat [-config file] path...

Boots a kernel over the configured image and calls statx on every path
through the syscall dispatcher, one child of pid 1 per path.
`
}

func (c *statCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "TOML boot configuration")
}

func (c *statCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
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
	if !statPaths(ctx, k, f.Args(), os.Stdout, os.Stderr) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// statPaths stats every path concurrently and prints the results in
// argument order. It reports whether all of them succeeded.
func statPaths(ctx context.Context, k *kernel, paths []string, out, errOut io.Writer) bool {
	results := make([]file.Kstat, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = k.statx(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(errOut, err)
		return false
	}

	ok := true
	for i, path := range paths {
		if errs[i] != nil {
			fmt.Fprintf(errOut, "stat: cannot stat %q: %v\n", path, errs[i])
			ok = false
			continue
		}
		printStat(out, path, results[i])
	}
	return ok
}

func (k *kernel) statx(path string) (file.Kstat, error) {
	var kstat file.Kstat
	err := k.withChild(func(t *task) error {
		p, err := t.putString(path)
		if err != nil {
			return err
		}
		buf, err := scratch[unix.Statx_t](t)
		if err != nil {
			return err
		}
		if err := t.call(unix.SYS_STATX, atFdcwd, p, 0, unix.STATX_BASIC_STATS, uintptr(buf.Addr)); err != nil {
			return err
		}
		sx, err := buf.Load(t.proc.Memory)
		if err != nil {
			return err
		}
		kstat = file.KstatFromStatx(sx)
		return nil
	})
	return kstat, err
}

func fileType(mode uint32) string {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return "regular file"
	case unix.S_IFDIR:
		return "directory"
	case unix.S_IFLNK:
		return "symbolic link"
	case unix.S_IFCHR:
		return "character special file"
	case unix.S_IFBLK:
		return "block special file"
	case unix.S_IFIFO:
		return "fifo"
	case unix.S_IFSOCK:
		return "socket"
	}
	return "weird file"
}

func modeString(mode uint32) string {
	m := fs.FileMode(mode & 0o777)
	if mode&unix.S_IFMT == unix.S_IFDIR {
		m |= fs.ModeDir
	}
	return m.String()
}

func formatTime(ts unix.Timespec) string {
	return time.Unix(ts.Sec, ts.Nsec).UTC().Format("2006-01-02 15:04:05.000000000 -0700")
}

// printStat prints k in the layout of coreutils stat(1).
func printStat(w io.Writer, path string, k file.Kstat) {
	fmt.Fprintf(w, "  File: %s\n", path)
	fmt.Fprintf(w, "  Size: %-15d Blocks: %-10d IO Block: %-6d %s\n", k.Size, k.Blocks, k.Blksize, fileType(k.Mode))
	fmt.Fprintf(w, "Device: %d,%d\tInode: %-11d Links: %d\n", unix.Major(k.Dev), unix.Minor(k.Dev), k.Ino, k.Nlink)
	fmt.Fprintf(w, "Access: (%04o/%s)  Uid: %5d   Gid: %5d\n", k.Mode&0o7777, modeString(k.Mode), k.UID, k.GID)
	fmt.Fprintf(w, "Access: %s\n", formatTime(k.Atime))
	fmt.Fprintf(w, "Modify: %s\n", formatTime(k.Mtime))
	fmt.Fprintf(w, "Change: %s\n", formatTime(k.Ctime))
}
