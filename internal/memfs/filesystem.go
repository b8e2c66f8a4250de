// Package memfs is an in-memory filesystem that implements file.Backend.
//
// Objects live in a flat map from inode number to *backingFile or
// *backingDir; directories map names to inode numbers. The whole tree can
// be saved to and loaded from a bbolt root image (see image.go).
package memfs

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
)

const RootInode = 1

// meta is the part of an inode's attributes that is stored, as opposed
// to computed (size, link count).
type meta struct {
	Mode  uint32 // permission bits only; the type comes from the object
	UID   uint32
	GID   uint32
	Rdev  uint64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

type backingFile struct {
	inode     int
	meta      meta
	data      []byte
	size      int64 // may exceed len(data); the tail reads as zeroes
	linkCount int
}

type backingDir struct {
	inode   int
	parent  int
	name    string // name in parent
	meta    meta
	entries map[string]int
	// removed is set once the directory is unlinked from its parent; it
	// lives on only while handles are open.
	removed bool
}

type filesystemState struct {
	objects map[int]any
	next    int
}

func (fss *filesystemState) getFile(idx int) (*backingFile, bool) {
	f, ok := fss.objects[idx].(*backingFile)
	return f, ok
}

func (fss *filesystemState) getDir(idx int) (*backingDir, bool) {
	d, ok := fss.objects[idx].(*backingDir)
	return d, ok
}

// Filesystem is safe for concurrent use. All state is guarded by mu.
type Filesystem struct {
	mu sync.Mutex

	state *filesystemState

	// openCountByInode counts live handles, so that unlinked but open
	// files keep answering Attr.
	openCountByInode map[int]int

	dev uint64
	now func() time.Time
}

// Option configures a Filesystem.
type Option func(*Filesystem)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(fs *Filesystem) { fs.now = now }
}

// WithDevice sets the device number reported for every object.
func WithDevice(dev uint64) Option {
	return func(fs *Filesystem) { fs.dev = dev }
}

// DefaultDevice is the device number reported unless WithDevice is used
// (major 8, minor 1, like a first SCSI disk partition).
var DefaultDevice = unix.Mkdev(8, 1)

func emptyState(m meta) *filesystemState {
	return &filesystemState{
		objects: map[int]any{
			RootInode: &backingDir{
				inode:   RootInode,
				parent:  RootInode,
				meta:    m,
				entries: make(map[string]int),
			},
		},
		next: RootInode + 1,
	}
}

// New returns a filesystem holding only an empty root directory.
func New(opts ...Option) *Filesystem {
	fs := &Filesystem{
		openCountByInode: make(map[int]int),
		dev:              DefaultDevice,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}
	now := fs.now()
	fs.state = emptyState(meta{Mode: 0o755, Atime: now, Mtime: now, Ctime: now})
	return fs
}

func (fs *Filesystem) newMeta(mode uint32) meta {
	now := fs.now()
	return meta{Mode: mode & 0o7777, Atime: now, Mtime: now, Ctime: now}
}

// walkpath resolves all but (if keepLast) the last component of path,
// starting at the root. It returns the inode reached and the remaining
// last component.
func (fs *Filesystem) walkpath(path string, keepLast bool) (inode int, entry string, err error) {
	inode = RootInode
	for {
		for len(path) > 0 && path[0:1] == "/" {
			path = path[1:]
		}

		nextSlash := strings.Index(path, "/")
		var name string
		if nextSlash == -1 {
			name = path
		} else {
			name = path[:nextSlash]
		}

		if len(name) == len(path) && keepLast {
			return inode, name, nil
		}

		if name == "" {
			return inode, "", nil
		}

		dir, ok := fs.state.getDir(inode)
		if !ok {
			return 0, "", unix.ENOTDIR
		}

		switch name {
		case ".":
		case "..":
			inode = dir.parent
		default:
			entry, ok := dir.entries[name]
			if !ok {
				return 0, "", unix.ENOENT
			}
			inode = entry
		}

		path = path[len(name):]
	}
}

// lookupLocked resolves path to an inode.
func (fs *Filesystem) lookupLocked(path string) (int, error) {
	dirInode, name, err := fs.walkpath(path, true)
	if err != nil {
		return 0, err
	}
	dir, ok := fs.state.getDir(dirInode)
	if !ok {
		return 0, unix.ENOTDIR
	}
	switch name {
	case "", ".":
		return dirInode, nil
	case "..":
		return dir.parent, nil
	}
	inode, ok := dir.entries[name]
	if !ok {
		return 0, unix.ENOENT
	}
	return inode, nil
}

// parentLocked resolves everything but the last component of path, which
// must name a new entry.
func (fs *Filesystem) parentLocked(path string) (*backingDir, string, error) {
	dirInode, name, err := fs.walkpath(path, true)
	if err != nil {
		return nil, "", err
	}
	dir, ok := fs.state.getDir(dirInode)
	if !ok {
		return nil, "", unix.ENOTDIR
	}
	if name == "" || name == "." || name == ".." {
		return nil, "", unix.EEXIST
	}
	if _, ok := dir.entries[name]; ok {
		return nil, "", unix.EEXIST
	}
	return dir, name, nil
}

func (fs *Filesystem) allocLocked() int {
	inode := fs.state.next
	fs.state.next++
	return inode
}

// Mkdir creates a directory.
func (fs *Filesystem) Mkdir(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.parentLocked(path)
	if err != nil {
		return err
	}

	inode := fs.allocLocked()
	fs.state.objects[inode] = &backingDir{
		inode:   inode,
		parent:  parent.inode,
		name:    name,
		meta:    fs.newMeta(mode),
		entries: make(map[string]int),
	}
	parent.entries[name] = inode
	parent.meta.Mtime = fs.now()
	parent.meta.Ctime = parent.meta.Mtime
	return nil
}

// MkdirAll creates path and any missing parents.
func (fs *Filesystem) MkdirAll(path string, mode uint32) error {
	var prefix string
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		prefix += "/" + part
		if err := fs.Mkdir(prefix, mode); err != nil && err != unix.EEXIST {
			return err
		}
	}
	return nil
}

// WriteFile creates or replaces the file at path with data.
func (fs *Filesystem) WriteFile(path string, data []byte, mode uint32) error {
	return fs.createFile(path, data, int64(len(data)), mode)
}

// CreateSized creates a file of the given size whose contents read as
// zeroes, without allocating them.
func (fs *Filesystem) CreateSized(path string, size int64, mode uint32) error {
	if size < 0 {
		return unix.EINVAL
	}
	return fs.createFile(path, nil, size, mode)
}

func (fs *Filesystem) createFile(path string, data []byte, size int64, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if inode, err := fs.lookupLocked(path); err == nil {
		f, ok := fs.state.getFile(inode)
		if !ok {
			return unix.EISDIR
		}
		f.data = slices.Clone(data)
		f.size = size
		f.meta.Mode = mode & 0o7777
		f.meta.Mtime = fs.now()
		f.meta.Ctime = f.meta.Mtime
		return nil
	}

	parent, name, err := fs.parentLocked(path)
	if err != nil {
		return err
	}
	inode := fs.allocLocked()
	fs.state.objects[inode] = &backingFile{
		inode:     inode,
		meta:      fs.newMeta(mode),
		data:      slices.Clone(data),
		size:      size,
		linkCount: 1,
	}
	parent.entries[name] = inode
	parent.meta.Mtime = fs.now()
	parent.meta.Ctime = parent.meta.Mtime
	return nil
}

// ReadFile returns the contents of the file at path.
func (fs *Filesystem) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	f, ok := fs.state.getFile(inode)
	if !ok {
		return nil, unix.EISDIR
	}
	out := make([]byte, f.size)
	copy(out, f.data)
	return out, nil
}

// Chmod replaces the permission bits of path.
func (fs *Filesystem) Chmod(path string, mode uint32) error {
	return fs.updateMeta(path, func(m *meta) { m.Mode = mode & 0o7777 })
}

// Chown changes the owner and group of path.
func (fs *Filesystem) Chown(path string, uid, gid uint32) error {
	return fs.updateMeta(path, func(m *meta) { m.UID, m.GID = uid, gid })
}

func (fs *Filesystem) updateMeta(path string, fn func(*meta)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return err
	}
	var m *meta
	switch obj := fs.state.objects[inode].(type) {
	case *backingFile:
		m = &obj.meta
	case *backingDir:
		m = &obj.meta
	default:
		panic("invalid")
	}
	fn(m)
	m.Ctime = fs.now()
	return nil
}

// Remove unlinks a file, or removes an empty directory.
func (fs *Filesystem) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walkpath(path, true)
	if err != nil {
		return err
	}
	dir, ok := fs.state.getDir(dirInode)
	if !ok {
		return unix.ENOTDIR
	}
	inode, ok := dir.entries[name]
	if !ok {
		return unix.ENOENT
	}

	switch obj := fs.state.objects[inode].(type) {
	case *backingFile:
		obj.linkCount--
		obj.meta.Ctime = fs.now()
	case *backingDir:
		if len(obj.entries) != 0 {
			return unix.ENOTEMPTY
		}
		obj.removed = true
	}
	delete(dir.entries, name)
	dir.meta.Mtime = fs.now()
	dir.meta.Ctime = dir.meta.Mtime
	fs.maybeGC(inode)
	return nil
}

func (fs *Filesystem) maybeGC(inode int) {
	if _, ok := fs.openCountByInode[inode]; ok {
		return
	}
	switch obj := fs.state.objects[inode].(type) {
	case *backingFile:
		if obj.linkCount == 0 {
			delete(fs.state.objects, inode)
		}
	case *backingDir:
		if obj.removed {
			delete(fs.state.objects, inode)
		}
	}
}

// Getpath returns the absolute path of a directory inode.
func (fs *Filesystem) Getpath(dirInode int) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var s []string
	for dirInode != RootInode {
		dir, ok := fs.state.getDir(dirInode)
		if !ok {
			return "", unix.ENOTDIR
		}
		s = append(s, dir.name)
		dirInode = dir.parent
	}
	if len(s) == 0 {
		return "/", nil
	}
	s = append(s, "")
	slices.Reverse(s)
	return strings.Join(s, "/"), nil
}

type ReadDirEntry struct {
	Name  string
	IsDir bool
}

// ReadDir lists a directory, sorted by name.
func (fs *Filesystem) ReadDir(path string) ([]ReadDirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	dir, ok := fs.state.getDir(inode)
	if !ok {
		return nil, unix.ENOTDIR
	}

	var entries []ReadDirEntry
	for name, inode := range dir.entries {
		_, isDir := fs.state.getDir(inode)
		entries = append(entries, ReadDirEntry{Name: name, IsDir: isDir})
	}
	slices.SortFunc(entries, func(a, b ReadDirEntry) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return entries, nil
}

func (fs *Filesystem) attrLocked(inode int) (file.Attr, error) {
	attr := file.Attr{
		Ino:     uint64(inode),
		Dev:     fs.dev,
		Blksize: file.DefaultBlockSize,
	}
	var m meta
	switch obj := fs.state.objects[inode].(type) {
	case *backingFile:
		m = obj.meta
		attr.Mode = unix.S_IFREG | m.Mode
		attr.Nlink = uint32(obj.linkCount)
		attr.Size = obj.size
	case *backingDir:
		m = obj.meta
		attr.Mode = unix.S_IFDIR | m.Mode
		// "." and the entry in the parent, plus ".." of every subdirectory.
		attr.Nlink = 2
		for _, child := range obj.entries {
			if _, ok := fs.state.getDir(child); ok {
				attr.Nlink++
			}
		}
		if obj.removed {
			attr.Nlink = 0
		}
		attr.Size = file.DefaultBlockSize
	default:
		return file.Attr{}, unix.ENOENT
	}
	attr.UID = m.UID
	attr.GID = m.GID
	attr.Rdev = m.Rdev
	attr.Atime = m.Atime
	attr.Mtime = m.Mtime
	attr.Ctime = m.Ctime
	return attr, nil
}

// Stat returns the attributes of path without opening it.
func (fs *Filesystem) Stat(path string) (file.Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return file.Attr{}, err
	}
	return fs.attrLocked(inode)
}

// handle is an open inode. It implements file.Handle.
type handle struct {
	fs     *Filesystem
	inode  int
	closed bool
}

func (h *handle) Attr() (file.Attr, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return file.Attr{}, unix.EBADF
	}
	return h.fs.attrLocked(h.inode)
}

func (h *handle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return unix.EBADF
	}
	h.closed = true

	newCount := h.fs.openCountByInode[h.inode] - 1
	if newCount == 0 {
		delete(h.fs.openCountByInode, h.inode)
		h.fs.maybeGC(h.inode)
	} else {
		h.fs.openCountByInode[h.inode] = newCount
	}
	return nil
}

func (fs *Filesystem) openLocked(inode int) *handle {
	fs.openCountByInode[inode]++
	return &handle{fs: fs, inode: inode}
}

// OpenFile implements file.Backend. Opening does not touch atime; the
// stat family opens objects only to read their metadata.
func (fs *Filesystem) OpenFile(path string, _ file.OpenOptions) (file.Handle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	if _, ok := fs.state.getDir(inode); ok {
		return nil, unix.EISDIR
	}
	return fs.openLocked(inode), nil
}

// OpenDir implements file.Backend.
func (fs *Filesystem) OpenDir(path string, opts file.OpenOptions) (file.Handle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode, err := fs.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	if _, ok := fs.state.getDir(inode); !ok {
		return nil, unix.ENOTDIR
	}
	if opts.Write {
		return nil, unix.EISDIR
	}
	return fs.openLocked(inode), nil
}

// OpenHandles returns the number of live handles, for leak checks.
func (fs *Filesystem) OpenHandles() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, c := range fs.openCountByInode {
		n += c
	}
	return n
}
