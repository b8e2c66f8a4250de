//go:build arm64 || riscv64

package syscalls

import "golang.org/x/sys/unix"

// The asm-generic table has no stat, lstat or access; libc goes through
// the *at calls instead.
var syscallTable = map[uintptr]handler{
	unix.SYS_STATX:      {name: "statx", fn: sysStatx, trace: traceStatx},
	unix.SYS_STATFS:     {name: "statfs", fn: sysStatfs},
	unix.SYS_FSTATFS:    {name: "fstatfs", fn: sysFstatfs},
	unix.SYS_FACCESSAT:  {name: "faccessat", fn: sysFaccessat, trace: traceAccess(2, -1)},
	unix.SYS_FACCESSAT2: {name: "faccessat2", fn: sysFaccessat2, trace: traceAccess(2, 3)},
	unix.SYS_GETRLIMIT:  {name: "getrlimit", fn: sysGetrlimit, trace: traceResource(0)},
	unix.SYS_SETRLIMIT:  {name: "setrlimit", fn: sysSetrlimit, trace: traceResource(0)},
	unix.SYS_PRLIMIT64:  {name: "prlimit64", fn: sysPrlimit64, trace: traceResource(1)},
}
