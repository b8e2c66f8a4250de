package main

import (
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/config"
	"github.com/kmrgirish/starry/internal/klog"
	"github.com/kmrgirish/starry/internal/memfs"
	"github.com/kmrgirish/starry/internal/process"
	"github.com/kmrgirish/starry/internal/syscalls"
	"github.com/kmrgirish/starry/internal/usermem"
)

// atFdcwd is AT_FDCWD as it appears in an argument register.
const atFdcwd = uintptr(unix.AT_FDCWD & 0xffffffff)

type kernel struct {
	log   *slog.Logger
	os    *syscalls.LinuxOS
	procs *process.Registry
	init  *process.Process
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// boot loads the root image named by cfg and starts pid 1. Logs and
// syscall traces go to logOut.
func boot(cfg *config.Config, logOut io.Writer) (*kernel, error) {
	logger, err := klog.New(logOut, klog.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	tracer, err := klog.NewTracer(logger)
	if err != nil {
		return nil, err
	}

	root := memfs.New()
	if cfg.Image != "" {
		if root, err = memfs.Load(cfg.Image); err != nil {
			return nil, err
		}
	}

	procs := process.NewRegistry(cfg.Limits)
	first := procs.Spawn(nil)
	first.SetCwd(cfg.Cwd)
	logger.Info("booted", "image", cfg.Image, "pid", first.Pid, "cwd", first.Cwd())

	return &kernel{
		log:   logger,
		os:    syscalls.NewLinuxOS(procs, root, syscalls.WithLogger(logger), syscalls.WithTracer(tracer)),
		procs: procs,
		init:  first,
	}, nil
}

const scratchSize = 4 * usermem.PageSize

// task is a process plus a scratch area in its address space that holds
// syscall arguments.
type task struct {
	k    *kernel
	proc *process.Process
	next usermem.Addr
	end  usermem.Addr
}

func (k *kernel) task(proc *process.Process) (*task, error) {
	base, err := proc.Memory.Allocate(scratchSize, usermem.ReadWrite)
	if err != nil {
		return nil, err
	}
	return &task{k: k, proc: proc, next: base, end: base + scratchSize}, nil
}

// withChild runs fn as a fresh child of pid 1 and reaps the child
// afterwards. An error from fn wins over one from closing the child's
// descriptors.
func (k *kernel) withChild(fn func(*task) error) error {
	proc := k.procs.Spawn(k.init)
	t, err := k.task(proc)
	if err == nil {
		err = fn(t)
	}
	if exitErr := k.procs.Exit(proc); err == nil {
		err = exitErr
	}
	return err
}

func (t *task) alloc(n uint64) (usermem.Addr, error) {
	addr := t.next
	if uint64(t.end-addr) < n {
		return 0, fmt.Errorf("scratch space exhausted")
	}
	t.next += usermem.Addr((n + 15) &^ 15)
	return addr, nil
}

func (t *task) putString(s string) (uintptr, error) {
	addr, err := t.alloc(uint64(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	if err := usermem.CopyStringOut(t.proc.Memory, addr, s); err != nil {
		return 0, err
	}
	return uintptr(addr), nil
}

func scratch[T any](t *task) (usermem.Ptr[T], error) {
	addr, err := t.alloc(256)
	return usermem.Ptr[T]{Addr: addr}, err
}

// call dispatches a syscall and turns a negative result into an Errno.
func (t *task) call(sysno uintptr, args ...uintptr) error {
	var a syscalls.Args
	copy(a[:], args)
	if ret := t.k.os.Dispatch(t.proc.Pid, sysno, a); ret < 0 {
		return unix.Errno(-ret)
	}
	return nil
}
