// Package file is the file-like abstraction the stat family is built on.
//
// A Backend opens paths as regular files or as directories; the two are
// separate operations and opening a directory as a file fails with
// EISDIR. FileLike is the sum of the two kinds of open object and gives
// both the same metadata and permission contract.
package file

import (
	"time"

	"golang.org/x/sys/unix"
)

// OpenOptions are the options a backend open takes.
type OpenOptions struct {
	Read  bool
	Write bool
}

// A Handle is an open backend object.
type Handle interface {
	// Attr returns the current attributes of the object.
	Attr() (Attr, error)
	// Close releases the handle. Attr must not be called afterwards.
	Close() error
}

// Backend is the filesystem the syscall layer runs on. Paths are absolute
// and clean. Errors are errnos: ENOENT for a missing entry, ENOTDIR when
// a path component is not a directory, EISDIR from OpenFile on a
// directory and ENOTDIR from OpenDir on anything else.
type Backend interface {
	OpenFile(path string, opts OpenOptions) (Handle, error)
	OpenDir(path string, opts OpenOptions) (Handle, error)
}

// Attr is what a backend knows about an object.
type Attr struct {
	Ino   uint64
	Dev   uint64
	Mode  uint32 // type and permission bits, as in st_mode
	Nlink uint32
	UID   uint32
	GID   uint32
	Rdev  uint64
	Size  int64
	// Blksize is the preferred I/O size; zero means DefaultBlockSize.
	Blksize uint32

	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// DefaultBlockSize is reported when a backend has no preference.
const DefaultBlockSize = 4096

// IsDir reports whether the attributes describe a directory.
func (a Attr) IsDir() bool {
	return a.Mode&unix.S_IFMT == unix.S_IFDIR
}

// Perm returns the permission bits.
func (a Attr) Perm() Perm {
	return Perm(a.Mode & 0o7777)
}

// Perm is a set of permission bits.
type Perm uint32

func (p Perm) OwnerReadable() bool   { return p&unix.S_IRUSR != 0 }
func (p Perm) OwnerWritable() bool   { return p&unix.S_IWUSR != 0 }
func (p Perm) OwnerExecutable() bool { return p&unix.S_IXUSR != 0 }
