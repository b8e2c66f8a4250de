package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"

	"github.com/kmrgirish/starry/internal/memfs"
)

// manifest describes the contents of a root image:
//
//	[[dir]]
//	path = "/musl/lib"
//
//	[[file]]
//	path = "/musl/busybox"
//	mode = 0o755
//	size = 500000
type manifest struct {
	Dirs  []manifestEntry `toml:"dir"`
	Files []manifestEntry `toml:"file"`
}

type manifestEntry struct {
	Path string `toml:"path"`
	// Mode defaults to 0755 for directories and 0644 for files.
	Mode *uint32 `toml:"mode"`
	UID  uint32  `toml:"uid"`
	GID  uint32  `toml:"gid"`
	// Size makes a file of that many zero bytes; Contents wins if set.
	Size     int64  `toml:"size"`
	Contents string `toml:"contents"`
}

func (e manifestEntry) mode(def uint32) uint32 {
	if e.Mode == nil {
		return def
	}
	return *e.Mode
}

func decodeManifest(text string) (*manifest, error) {
	var m manifest
	md, err := toml.Decode(text, &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown manifest keys: %s", strings.Join(keys, ", "))
	}
	return &m, nil
}

// build creates the manifest's tree. Missing parents are created 0755.
func (m *manifest) build(opts ...memfs.Option) (*memfs.Filesystem, error) {
	fs := memfs.New(opts...)
	for _, d := range m.Dirs {
		mode := d.mode(0o755)
		if err := fs.MkdirAll(d.Path, mode); err != nil {
			return nil, fmt.Errorf("dir %s: %w", d.Path, err)
		}
		// MkdirAll leaves an existing directory's mode alone.
		if err := fs.Chmod(d.Path, mode); err != nil {
			return nil, fmt.Errorf("dir %s: %w", d.Path, err)
		}
		if err := fs.Chown(d.Path, d.UID, d.GID); err != nil {
			return nil, fmt.Errorf("dir %s: %w", d.Path, err)
		}
	}
	for _, f := range m.Files {
		if err := fs.MkdirAll(path.Dir(f.Path), 0o755); err != nil {
			return nil, fmt.Errorf("file %s: %w", f.Path, err)
		}
		mode := f.mode(0o644)
		var err error
		if f.Contents != "" {
			err = fs.WriteFile(f.Path, []byte(f.Contents), mode)
		} else {
			err = fs.CreateSized(f.Path, f.Size, mode)
		}
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", f.Path, err)
		}
		if err := fs.Chown(f.Path, f.UID, f.GID); err != nil {
			return nil, fmt.Errorf("file %s: %w", f.Path, err)
		}
	}
	return fs, nil
}

type mkimageCmd struct {
	manifest string
	out      string
}

func (*mkimageCmd) Name() string     { return "mkimage" }
func (*mkimageCmd) Synopsis() string { return "build a root image from a TOML manifest" }
func (*mkimageCmd) Usage() string {
	return `mkimage -manifest m.toml -out rootfs.db
`
}

func (c *mkimageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.manifest, "manifest", "", "TOML manifest of directories and files")
	f.StringVar(&c.out, "out", "", "image to write")
}

func (c *mkimageCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.manifest == "" || c.out == "" || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := mkimage(c.manifest, c.out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func mkimage(manifestPath, out string) error {
	text, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	m, err := decodeManifest(string(text))
	if err != nil {
		return fmt.Errorf("%s: %w", manifestPath, err)
	}
	fs, err := m.build()
	if err != nil {
		return fmt.Errorf("%s: %w", manifestPath, err)
	}
	return fs.Save(out)
}
