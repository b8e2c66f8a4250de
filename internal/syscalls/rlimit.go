package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/limits"
	"github.com/kmrgirish/starry/internal/process"
	"github.com/kmrgirish/starry/internal/usermem"
)

func toRlimit(l limits.Limit) unix.Rlimit {
	return unix.Rlimit{Cur: l.Soft, Max: l.Hard}
}

func fromRlimit(r unix.Rlimit) limits.Limit {
	return limits.Limit{Soft: r.Cur, Hard: r.Max}
}

func (l *LinuxOS) SysGetrlimit(t *process.Process, resource int, buf usermem.Ptr[unix.Rlimit]) error {
	kind, err := limits.FromLinuxResource(resource)
	if err != nil {
		return err
	}
	return buf.Store(t.Memory, toRlimit(t.Limits.Get(kind)))
}

func (l *LinuxOS) SysSetrlimit(t *process.Process, resource int, buf usermem.Ptr[unix.Rlimit]) error {
	kind, err := limits.FromLinuxResource(resource)
	if err != nil {
		return err
	}
	r, err := buf.Load(t.Memory)
	if err != nil {
		return err
	}
	_, err = t.Limits.Set(kind, fromRlimit(r))
	return err
}

// SysPrlimit64 gets and optionally replaces a limit of process pid (0 is
// the caller). The old value is written out first, so it is reported even
// when the new one is then refused. There is no check that the caller may
// change the target.
func (l *LinuxOS) SysPrlimit64(t *process.Process, pid int, resource int, newp, oldp usermem.Ptr[unix.Rlimit]) error {
	kind, err := limits.FromLinuxResource(resource)
	if err != nil {
		return err
	}
	target, err := l.procs.Resolve(t, pid)
	if err != nil {
		return err
	}

	if !oldp.IsNull() {
		if err := oldp.Store(t.Memory, toRlimit(target.Limits.Get(kind))); err != nil {
			return err
		}
	}
	if newp.IsNull() {
		return nil
	}
	r, err := newp.Load(t.Memory)
	if err != nil {
		return err
	}
	_, err = target.Limits.Set(kind, fromRlimit(r))
	return err
}
