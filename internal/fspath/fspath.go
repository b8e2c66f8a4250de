// Package fspath turns the (dirfd, path, flags) triple of the *at family
// into something the file layer can open.
package fspath

import (
	"path"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/linuxerr"
)

// Context is what resolution needs from the calling process.
type Context interface {
	Cwd() string
	Descriptors() file.Descriptors
}

// Target is either a clean absolute path or, when Direct is set, the
// descriptor FD itself.
type Target struct {
	Path   string
	FD     int
	Direct bool
}

func (t Target) String() string {
	if t.Direct {
		return "fd:" + strconv.Itoa(t.FD)
	}
	return t.Path
}

// Resolve applies, in order:
//
//  1. an absolute path is used as is and dirfd is ignored;
//  2. a relative path with AT_FDCWD is joined to the working directory;
//  3. a relative path with any other dirfd is joined to the path of the
//     directory open under dirfd (EBADF if nothing is open there,
//     ENOTDIR if it is not a directory);
//  4. an absent or empty path names dirfd itself when AT_EMPTY_PATH is
//     in flags, and is ENOENT otherwise.
//
// Joined paths are cleaned lexically.
func Resolve(ctx Context, dirfd int, p string, present bool, flags int) (Target, error) {
	if !present || p == "" {
		if flags&unix.AT_EMPTY_PATH == 0 {
			return Target{}, linuxerr.NoSuchEntry
		}
		return Target{FD: dirfd, Direct: true}, nil
	}

	if path.IsAbs(p) {
		return Target{Path: path.Clean(p)}, nil
	}

	if dirfd == unix.AT_FDCWD {
		return Target{Path: path.Join(ctx.Cwd(), p)}, nil
	}

	dir, err := ctx.Descriptors().Get(dirfd)
	if err != nil {
		return Target{}, err
	}
	if !file.IsDirectory(dir) {
		return Target{}, linuxerr.NotADirectory
	}
	return Target{Path: path.Join(dir.Path(), p)}, nil
}
