package syscalls

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/klog"
	"github.com/kmrgirish/starry/internal/linuxerr"
	"github.com/kmrgirish/starry/internal/process"
	"github.com/kmrgirish/starry/internal/usermem"
)

// Args are the six raw argument registers of a syscall.
type Args [6]uintptr

// Int decodes argument i as a C int, which is 32 bits wide whatever the
// register size.
func (a Args) Int(i int) int {
	return int(int32(a[i]))
}

func (a Args) Uint32(i int) uint32 {
	return uint32(a[i])
}

func (a Args) CString(i int) usermem.CString {
	return usermem.CStringAt(a[i])
}

func ptrArg[T any](a Args, i int) usermem.Ptr[T] {
	return usermem.PtrTo[T](a[i])
}

type handler struct {
	name string
	fn   func(l *LinuxOS, t *process.Process, a Args) error
	// trace returns extra tracer fields describing the arguments.
	trace func(a Args) []zap.Field
}

func sysStat(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysStat(t, a.CString(0), ptrArg[unix.Stat_t](a, 1))
}

func sysLstat(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysLstat(t, a.CString(0), ptrArg[unix.Stat_t](a, 1))
}

func sysFstat(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysFstat(t, a.Int(0), ptrArg[unix.Stat_t](a, 1))
}

func sysNewfstatat(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysNewfstatat(t, a.Int(0), a.CString(1), ptrArg[unix.Stat_t](a, 2), a.Int(3))
}

func sysStatx(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysStatx(t, a.Int(0), a.CString(1), a.Int(2), a.Uint32(3), ptrArg[unix.Statx_t](a, 4))
}

func sysStatfs(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysStatfs(t, a.CString(0), ptrArg[unix.Statfs_t](a, 1))
}

func sysFstatfs(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysFstatfs(t, a.Int(0), ptrArg[unix.Statfs_t](a, 1))
}

func sysAccess(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysAccess(t, a.CString(0), a.Uint32(1))
}

func sysFaccessat(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysFaccessat(t, a.Int(0), a.CString(1), a.Uint32(2))
}

func sysFaccessat2(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysFaccessat2(t, a.Int(0), a.CString(1), a.Uint32(2), a.Int(3))
}

func sysGetrlimit(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysGetrlimit(t, a.Int(0), ptrArg[unix.Rlimit](a, 1))
}

func sysSetrlimit(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysSetrlimit(t, a.Int(0), ptrArg[unix.Rlimit](a, 1))
}

func sysPrlimit64(l *LinuxOS, t *process.Process, a Args) error {
	return l.SysPrlimit64(t, a.Int(0), a.Int(1), ptrArg[unix.Rlimit](a, 2), ptrArg[unix.Rlimit](a, 3))
}

func traceAtFlags(i int) func(Args) []zap.Field {
	return func(a Args) []zap.Field {
		return []zap.Field{zap.String("flags", klog.AtFlags.Format(a.Int(i)))}
	}
}

func traceAccess(mode, flags int) func(Args) []zap.Field {
	return func(a Args) []zap.Field {
		fields := []zap.Field{zap.String("mode", klog.AccessModes.Format(int(a.Uint32(mode))))}
		if flags >= 0 {
			fields = append(fields, zap.String("flags", klog.AtFlags.Format(a.Int(flags))))
		}
		return fields
	}
}

func traceStatx(a Args) []zap.Field {
	return []zap.Field{
		zap.String("flags", klog.AtFlags.Format(a.Int(2))),
		zap.String("mask", klog.StatxMask.Format(int(a.Uint32(3)))),
	}
}

func traceResource(i int) func(Args) []zap.Field {
	return func(a Args) []zap.Field {
		return []zap.Field{zap.Int("resource", a.Int(i))}
	}
}

// SyscallName returns the name of syscall number sysno, or "" if Dispatch
// does not implement it.
func SyscallName(sysno uintptr) string {
	return syscallTable[sysno].name
}

// Dispatch runs syscall sysno for process pid and returns the ABI result:
// 0 on success or -errno. Unknown numbers return -ENOSYS and an unknown
// pid -ESRCH.
func (l *LinuxOS) Dispatch(pid int, sysno uintptr, args Args) int64 {
	h, ok := syscallTable[sysno]
	if !ok {
		l.tracer.Debug("syscall", zap.Int("pid", pid), zap.Uintptr("sysno", sysno), zap.String("errno", "ENOSYS"))
		return linuxerr.Return(0, linuxerr.NotImplemented)
	}

	t, err := l.procs.Get(pid)
	if err == nil {
		err = h.fn(l, t, args)
	}

	errno := linuxerr.Errno(err)
	if errno == unix.EIO {
		l.log.Warn("syscall failed unexpectedly", "pid", pid, "sys", h.name, "err", err)
	}
	ret := linuxerr.Return(0, err)

	if ce := l.tracer.Check(zap.DebugLevel, "syscall"); ce != nil {
		fields := []zap.Field{zap.Int("pid", pid), zap.String("sys", h.name), zap.Int64("ret", ret)}
		if errno != 0 {
			fields = append(fields, zap.String("errno", unix.ErrnoName(errno)))
		}
		if h.trace != nil {
			fields = append(fields, h.trace(args)...)
		}
		ce.Write(fields...)
	}
	return ret
}
