package file

import (
	"errors"

	"golang.org/x/sys/unix"
)

// FileLike is an open object: either a *File or a *Directory. No other
// type implements it.
type FileLike interface {
	// Stat returns the object's metadata in kernel form.
	Stat() (Kstat, error)
	// Attr returns the backend attributes, including the permission bits.
	Attr() (Attr, error)
	// Path is the path the object was opened from. It is kept for
	// diagnostics and directory-relative lookups, not as identity.
	Path() string
	Close() error

	fileLike()
}

// File is an open regular file.
type File struct {
	handle Handle
	path   string
}

// NewFile wraps a handle returned by Backend.OpenFile.
func NewFile(h Handle, path string) *File {
	return &File{handle: h, path: path}
}

func (f *File) Stat() (Kstat, error) { return statHandle(f.handle) }
func (f *File) Attr() (Attr, error)  { return f.handle.Attr() }
func (f *File) Path() string         { return f.path }
func (f *File) Close() error         { return f.handle.Close() }
func (*File) fileLike()              {}

// Directory is an open directory.
type Directory struct {
	handle Handle
	path   string
}

// NewDirectory wraps a handle returned by Backend.OpenDir.
func NewDirectory(h Handle, path string) *Directory {
	return &Directory{handle: h, path: path}
}

func (d *Directory) Stat() (Kstat, error) { return statHandle(d.handle) }
func (d *Directory) Attr() (Attr, error)  { return d.handle.Attr() }
func (d *Directory) Path() string         { return d.path }
func (d *Directory) Close() error         { return d.handle.Close() }
func (*Directory) fileLike()              {}

func statHandle(h Handle) (Kstat, error) {
	attr, err := h.Attr()
	if err != nil {
		return Kstat{}, err
	}
	return KstatFromAttr(attr), nil
}

// IsDirectory reports whether f is a *Directory.
func IsDirectory(f FileLike) bool {
	_, ok := f.(*Directory)
	return ok
}

// OpenPath opens path for metadata access. Backends have no "what kind is
// this" query, so it opens the path as a file first and, if the backend
// answers EISDIR, opens it again as a directory. Any other error is
// returned unchanged.
func OpenPath(b Backend, path string) (FileLike, error) {
	opts := OpenOptions{Read: true}
	h, err := b.OpenFile(path, opts)
	if err == nil {
		return NewFile(h, path), nil
	}
	if !errors.Is(err, unix.EISDIR) {
		return nil, err
	}
	h, err = b.OpenDir(path, opts)
	if err != nil {
		return nil, err
	}
	return NewDirectory(h, path), nil
}

// StatPath opens path, stats it and closes it again.
func StatPath(b Backend, path string) (Kstat, error) {
	f, err := OpenPath(b, path)
	if err != nil {
		return Kstat{}, err
	}
	defer f.Close()
	return f.Stat()
}

// Descriptors looks up open objects by descriptor number.
type Descriptors interface {
	Get(fd int) (FileLike, error)
}

// StatFD stats the object open under fd. The object is not reopened, so
// the result reflects it even if its path has since been unlinked.
func StatFD(ft Descriptors, fd int) (Kstat, error) {
	f, err := ft.Get(fd)
	if err != nil {
		return Kstat{}, err
	}
	return f.Stat()
}
