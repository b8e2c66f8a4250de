// Package process tracks the processes the syscall layer serves: their
// resource limits, descriptor tables, address spaces and working
// directories.
package process

import (
	"path"
	"sync"

	"github.com/kmrgirish/starry/internal/fdtable"
	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/limits"
	"github.com/kmrgirish/starry/internal/linuxerr"
	"github.com/kmrgirish/starry/internal/usermem"
)

type Process struct {
	Pid    int
	Limits *limits.Table
	Files  *fdtable.Table
	Memory *usermem.AddressSpace

	mu  sync.Mutex
	cwd string
}

// Cwd returns the working directory, an absolute clean path.
func (p *Process) Cwd() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// SetCwd replaces the working directory. Relative paths are taken
// against the current one.
func (p *Process) SetCwd(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !path.IsAbs(dir) {
		dir = path.Join(p.cwd, dir)
	}
	p.cwd = path.Clean(dir)
}

// Descriptors returns the descriptor table for path resolution.
func (p *Process) Descriptors() file.Descriptors {
	return p.Files
}

// Registry maps pids to processes.
type Registry struct {
	mu      sync.Mutex
	procs   map[int]*Process
	nextPid int

	newLimits func() *limits.Table
}

// NewRegistry returns an empty registry. Processes spawned without a
// parent start with the limits newLimits returns.
func NewRegistry(newLimits func() *limits.Table) *Registry {
	if newLimits == nil {
		newLimits = limits.NewLinuxTable
	}
	return &Registry{
		procs:     make(map[int]*Process),
		nextPid:   1,
		newLimits: newLimits,
	}
}

// Spawn creates a process. A child inherits a copy of its parent's limits
// and its working directory; its descriptor table and address space
// start empty.
func (r *Registry) Spawn(parent *Process) *Process {
	p := &Process{
		Files:  fdtable.New(),
		Memory: usermem.NewAddressSpace(),
		cwd:    "/",
	}
	if parent != nil {
		p.Limits = parent.Limits.Copy()
		p.cwd = parent.Cwd()
	} else {
		p.Limits = r.newLimits()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p.Pid = r.nextPid
	r.nextPid++
	r.procs[p.Pid] = p
	return p
}

// Get returns the process with the given pid, or ESRCH.
func (r *Registry) Get(pid int) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	if !ok {
		return nil, linuxerr.NoSuchProcess
	}
	return p, nil
}

// Resolve picks the process a pid argument names: 0 is the caller.
func (r *Registry) Resolve(caller *Process, pid int) (*Process, error) {
	if pid == 0 {
		return caller, nil
	}
	if pid < 0 {
		return nil, linuxerr.NoSuchProcess
	}
	return r.Get(pid)
}

// Exit removes the process and closes its descriptors.
func (r *Registry) Exit(p *Process) error {
	r.mu.Lock()
	delete(r.procs, p.Pid)
	r.mu.Unlock()
	return p.Files.CloseAll()
}

// Len returns the number of live processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
