// Package syscalls is the Linux entry point layer: the stat family,
// access checks and resource limits, callable either as typed Sys*
// methods or through Dispatch with raw syscall numbers and arguments.
//
// Every Sys* method returns nil or a unix.Errno. User memory is reached
// only through usermem pointers and is validated on each access.
package syscalls

import (
	"log/slog"

	"go.uber.org/zap"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/process"
)

// LinuxOS serves syscalls for the processes in a registry on top of a
// filesystem backend. It holds no mutable state of its own.
type LinuxOS struct {
	procs   *process.Registry
	backend file.Backend

	log    *slog.Logger
	tracer *zap.Logger
}

type Option func(*LinuxOS)

// WithLogger sets the logger for unexpected failures.
func WithLogger(log *slog.Logger) Option {
	return func(l *LinuxOS) { l.log = log }
}

// WithTracer makes Dispatch log every call at debug level.
func WithTracer(tracer *zap.Logger) Option {
	return func(l *LinuxOS) { l.tracer = tracer }
}

func NewLinuxOS(procs *process.Registry, backend file.Backend, opts ...Option) *LinuxOS {
	l := &LinuxOS{
		procs:   procs,
		backend: backend,
		log:     slog.Default(),
		tracer:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Processes returns the registry l serves.
func (l *LinuxOS) Processes() *process.Registry {
	return l.procs
}
