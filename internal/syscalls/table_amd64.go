package syscalls

import "golang.org/x/sys/unix"

var syscallTable = map[uintptr]handler{
	unix.SYS_STAT:       {name: "stat", fn: sysStat},
	unix.SYS_FSTAT:      {name: "fstat", fn: sysFstat},
	unix.SYS_LSTAT:      {name: "lstat", fn: sysLstat},
	unix.SYS_NEWFSTATAT: {name: "newfstatat", fn: sysNewfstatat, trace: traceAtFlags(3)},
	unix.SYS_STATX:      {name: "statx", fn: sysStatx, trace: traceStatx},
	unix.SYS_STATFS:     {name: "statfs", fn: sysStatfs},
	unix.SYS_FSTATFS:    {name: "fstatfs", fn: sysFstatfs},
	unix.SYS_ACCESS:     {name: "access", fn: sysAccess, trace: traceAccess(1, -1)},
	unix.SYS_FACCESSAT:  {name: "faccessat", fn: sysFaccessat, trace: traceAccess(2, -1)},
	unix.SYS_FACCESSAT2: {name: "faccessat2", fn: sysFaccessat2, trace: traceAccess(2, 3)},
	unix.SYS_GETRLIMIT:  {name: "getrlimit", fn: sysGetrlimit, trace: traceResource(0)},
	unix.SYS_SETRLIMIT:  {name: "setrlimit", fn: sysSetrlimit, trace: traceResource(0)},
	unix.SYS_PRLIMIT64:  {name: "prlimit64", fn: sysPrlimit64, trace: traceResource(1)},
}
