// Package fdtable is a per-process table of open file descriptors.
package fdtable

import (
	"maps"
	"slices"
	"sync"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/linuxerr"
)

// FirstFd is the lowest descriptor Install hands out; 0 through 2 are
// left for the standard streams.
const FirstFd = 3

type Table struct {
	mu     sync.Mutex
	files  map[int]file.FileLike
	nextFd int
}

func New() *Table {
	return &Table{
		files:  make(map[int]file.FileLike),
		nextFd: FirstFd,
	}
}

func (t *Table) allocFd() int {
	for {
		fd := t.nextFd
		t.nextFd++
		if _, ok := t.files[fd]; !ok {
			return fd
		}
	}
}

// Install adds f under a fresh descriptor.
func (t *Table) Install(f file.FileLike) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.allocFd()
	t.files[fd] = f
	return fd
}

// InstallAt adds f under fd, closing whatever was there.
func (t *Table) InstallAt(fd int, f file.FileLike) error {
	if fd < 0 {
		return linuxerr.BadDescriptor
	}
	t.mu.Lock()
	old := t.files[fd]
	t.files[fd] = f
	t.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Get returns the object open under fd, or EBADF.
func (t *Table) Get(fd int) (file.FileLike, error) {
	if fd < 0 {
		return nil, linuxerr.BadDescriptor
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if !ok {
		return nil, linuxerr.BadDescriptor
	}
	return f, nil
}

// Close removes fd and closes the object behind it.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	f, ok := t.files[fd]
	delete(t.files, fd)
	t.mu.Unlock()

	if !ok {
		return linuxerr.BadDescriptor
	}
	return f.Close()
}

// CloseAll empties the table, closing every object. It returns the first
// error seen.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	files := t.files
	t.files = make(map[int]file.FileLike)
	t.mu.Unlock()

	var first error
	for _, fd := range slices.Sorted(maps.Keys(files)) {
		if err := files[fd].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
