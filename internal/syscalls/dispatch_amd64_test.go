package syscalls_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/klog"
	"github.com/kmrgirish/starry/internal/limits"
	"github.com/kmrgirish/starry/internal/syscalls"
)

func neg(e unix.Errno) int64 { return -int64(e) }

func TestDispatch(t *testing.T) {
	e := newEnv(t)
	pid := e.proc.Pid
	stat := newBuf[unix.Stat_t](e)
	statx := newBuf[unix.Statx_t](e)
	statfs := newBuf[unix.Statfs_t](e)
	rlimit := newBuf[unix.Rlimit](e)
	busybox := uintptr(e.str("/musl/busybox").Addr)
	missing := uintptr(e.str("/no/such/file").Addr)
	empty := uintptr(e.str("").Addr)
	fd := uintptr(e.open("/musl/busybox"))
	atFdcwd := uintptr(0xffffff9c) // AT_FDCWD as the 32-bit int the kernel sees

	testcases := []struct {
		name  string
		pid   int
		sysno uintptr
		args  syscalls.Args
		want  int64
	}{
		{name: "stat", sysno: unix.SYS_STAT, args: syscalls.Args{busybox, uintptr(stat.Addr)}},
		{name: "stat missing", sysno: unix.SYS_STAT, args: syscalls.Args{missing, uintptr(stat.Addr)}, want: neg(unix.ENOENT)},
		{name: "stat bad buffer", sysno: unix.SYS_STAT, args: syscalls.Args{busybox, uintptr(unmapped)}, want: neg(unix.EFAULT)},
		{name: "lstat", sysno: unix.SYS_LSTAT, args: syscalls.Args{busybox, uintptr(stat.Addr)}},
		{name: "fstat", sysno: unix.SYS_FSTAT, args: syscalls.Args{fd, uintptr(stat.Addr)}},
		{name: "fstat bad fd", sysno: unix.SYS_FSTAT, args: syscalls.Args{99, uintptr(stat.Addr)}, want: neg(unix.EBADF)},
		{name: "newfstatat", sysno: unix.SYS_NEWFSTATAT, args: syscalls.Args{atFdcwd, busybox, uintptr(stat.Addr), 0}},
		{name: "newfstatat sign-extended cwd", sysno: unix.SYS_NEWFSTATAT, args: syscalls.Args{^uintptr(99), busybox, uintptr(stat.Addr), 0}},
		{name: "newfstatat empty", sysno: unix.SYS_NEWFSTATAT, args: syscalls.Args{fd, empty, uintptr(stat.Addr), 0}, want: neg(unix.ENOENT)},
		{name: "newfstatat empty path", sysno: unix.SYS_NEWFSTATAT, args: syscalls.Args{fd, empty, uintptr(stat.Addr), unix.AT_EMPTY_PATH}},
		{name: "statx", sysno: unix.SYS_STATX, args: syscalls.Args{atFdcwd, busybox, 0, unix.STATX_BASIC_STATS, uintptr(statx.Addr)}},
		{name: "statfs", sysno: unix.SYS_STATFS, args: syscalls.Args{busybox, uintptr(statfs.Addr)}},
		{name: "fstatfs", sysno: unix.SYS_FSTATFS, args: syscalls.Args{fd, uintptr(statfs.Addr)}},
		{name: "access F_OK missing", sysno: unix.SYS_ACCESS, args: syscalls.Args{missing, 0}},
		{name: "access", sysno: unix.SYS_ACCESS, args: syscalls.Args{busybox, unix.X_OK}},
		{name: "faccessat", sysno: unix.SYS_FACCESSAT, args: syscalls.Args{atFdcwd, missing, unix.R_OK}, want: neg(unix.ENOENT)},
		{name: "faccessat2 missing", sysno: unix.SYS_FACCESSAT2, args: syscalls.Args{atFdcwd, missing, unix.R_OK, 0}, want: neg(unix.ENOENT)},
		{name: "faccessat2 bad flags", sysno: unix.SYS_FACCESSAT2, args: syscalls.Args{atFdcwd, busybox, unix.R_OK, 0x4}, want: neg(unix.EINVAL)},
		{name: "getrlimit", sysno: unix.SYS_GETRLIMIT, args: syscalls.Args{unix.RLIMIT_NOFILE, uintptr(rlimit.Addr)}},
		{name: "getrlimit bad resource", sysno: unix.SYS_GETRLIMIT, args: syscalls.Args{1000, uintptr(rlimit.Addr)}, want: neg(unix.EINVAL)},
		{name: "prlimit64 query", sysno: unix.SYS_PRLIMIT64, args: syscalls.Args{0, unix.RLIMIT_NOFILE, 0, uintptr(rlimit.Addr)}},
		{name: "prlimit64 no such pid", sysno: unix.SYS_PRLIMIT64, args: syscalls.Args{12345, unix.RLIMIT_NOFILE, 0, uintptr(rlimit.Addr)}, want: neg(unix.ESRCH)},
		{name: "unknown syscall", sysno: unix.SYS_GETPID, want: neg(unix.ENOSYS)},
		{name: "huge syscall number", sysno: ^uintptr(0), want: neg(unix.ENOSYS)},
		{name: "unknown caller", pid: 777, sysno: unix.SYS_STAT, args: syscalls.Args{busybox, uintptr(stat.Addr)}, want: neg(unix.ESRCH)},
		{name: "garbage pointers", sysno: unix.SYS_STATX, args: syscalls.Args{^uintptr(0), ^uintptr(0), ^uintptr(0), ^uintptr(0), ^uintptr(0)}, want: neg(unix.EFAULT)},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.pid
			if p == 0 {
				p = pid
			}
			if got := e.os.Dispatch(p, tc.sysno, tc.args); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDispatchRlimitRoundTrip(t *testing.T) {
	e := newEnv(t)
	buf := newBuf[unix.Rlimit](e)
	if err := buf.Store(e.proc.Memory, unix.Rlimit{Cur: 100, Max: 200}); err != nil {
		t.Fatal(err)
	}
	if ret := e.os.Dispatch(e.proc.Pid, unix.SYS_SETRLIMIT, syscalls.Args{unix.RLIMIT_NOFILE, uintptr(buf.Addr)}); ret != 0 {
		t.Fatalf("setrlimit: %d", ret)
	}

	out := newBuf[unix.Rlimit](e)
	if ret := e.os.Dispatch(e.proc.Pid, unix.SYS_GETRLIMIT, syscalls.Args{unix.RLIMIT_NOFILE, uintptr(out.Addr)}); ret != 0 {
		t.Fatalf("getrlimit: %d", ret)
	}
	if got := load(e, out); got != (unix.Rlimit{Cur: 100, Max: 200}) {
		t.Errorf("got %+v", got)
	}

	// Raising the hard limit back is refused.
	if err := buf.Store(e.proc.Memory, unix.Rlimit{Cur: 100, Max: 201}); err != nil {
		t.Fatal(err)
	}
	if ret := e.os.Dispatch(e.proc.Pid, unix.SYS_PRLIMIT64, syscalls.Args{0, unix.RLIMIT_NOFILE, uintptr(buf.Addr), 0}); ret != neg(unix.EPERM) {
		t.Errorf("prlimit64 raise: %d", ret)
	}
	if got := e.proc.Limits.Get(limits.NumberOfFiles); got != (limits.Limit{Soft: 100, Hard: 200}) {
		t.Errorf("limit changed to %v", got)
	}
}

func TestDispatchTrace(t *testing.T) {
	var out bytes.Buffer
	logger, err := klog.New(&out, klog.Options{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	tracer, err := klog.NewTracer(logger)
	if err != nil {
		t.Fatal(err)
	}

	e := newEnv(t)
	traced := syscalls.NewLinuxOS(e.os.Processes(), e.fs, syscalls.WithLogger(logger), syscalls.WithTracer(tracer))
	path := e.str("/no/such/file")
	traced.Dispatch(e.proc.Pid, unix.SYS_FACCESSAT2, syscalls.Args{uintptr(0xffffff9c), uintptr(path.Addr), unix.R_OK, 0})

	logs := klog.ParseLog(out.Bytes())
	if len(logs) != 1 {
		t.Fatalf("got %d log lines:\n%s", len(logs), out.String())
	}
	if logs[0].Msg != "syscall" {
		t.Errorf("msg %q", logs[0].Msg)
	}
	if !bytes.Contains(out.Bytes(), []byte("ENOENT")) || !bytes.Contains(out.Bytes(), []byte("R_OK")) {
		t.Errorf("trace is missing fields: %s", out.String())
	}
}

type brokenBackend struct{}

func (brokenBackend) OpenFile(string, file.OpenOptions) (file.Handle, error) {
	return nil, errors.New("disk on fire")
}

func (brokenBackend) OpenDir(string, file.OpenOptions) (file.Handle, error) {
	return nil, errors.New("disk on fire")
}

// A backend error that is not an errno surfaces as EIO and is reported
// once, through the kernel's own logger.
func TestDispatchUnexpectedError(t *testing.T) {
	var out bytes.Buffer
	logger, err := klog.New(&out, klog.Options{Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}

	e := newEnv(t)
	broken := syscalls.NewLinuxOS(e.os.Processes(), brokenBackend{}, syscalls.WithLogger(logger))
	stat := newBuf[unix.Stat_t](e)
	path := e.str("/musl/busybox")
	if got := broken.Dispatch(e.proc.Pid, unix.SYS_STAT, syscalls.Args{uintptr(path.Addr), uintptr(stat.Addr)}); got != neg(unix.EIO) {
		t.Errorf("got %d, want -EIO", got)
	}

	var warnings int
	for _, log := range klog.ParseLog(out.Bytes()) {
		if log.Level == slog.LevelWarn {
			warnings++
		}
	}
	if warnings != 1 || !bytes.Contains(out.Bytes(), []byte("disk on fire")) {
		t.Errorf("want one warning naming the cause, got:\n%s", out.String())
	}
}

func TestSyscallName(t *testing.T) {
	for sysno, want := range map[uintptr]string{
		unix.SYS_STAT:       "stat",
		unix.SYS_FACCESSAT2: "faccessat2",
		unix.SYS_PRLIMIT64:  "prlimit64",
		unix.SYS_GETPID:     "",
	} {
		if got := syscalls.SyscallName(sysno); got != want {
			t.Errorf("SyscallName(%d) = %q, want %q", sysno, got, want)
		}
	}
}
