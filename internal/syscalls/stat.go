package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/fspath"
	"github.com/kmrgirish/starry/internal/process"
	"github.com/kmrgirish/starry/internal/usermem"
)

// statTarget stats what fspath resolves (dirfd, path, flags) to. A direct
// target stats the descriptor without reopening; AT_FDCWD as a direct
// target means the working directory.
func (l *LinuxOS) statTarget(t *process.Process, target fspath.Target) (file.Kstat, error) {
	if !target.Direct {
		return file.StatPath(l.backend, target.Path)
	}
	if target.FD == unix.AT_FDCWD {
		return file.StatPath(l.backend, t.Cwd())
	}
	return file.StatFD(t.Files, target.FD)
}

func (l *LinuxOS) statAt(t *process.Process, dirfd int, path usermem.CString, flags int) (file.Kstat, error) {
	p, present, err := path.LoadOptional(t.Memory)
	if err != nil {
		return file.Kstat{}, err
	}
	target, err := fspath.Resolve(t, dirfd, p, present, flags)
	if err != nil {
		return file.Kstat{}, err
	}
	return l.statTarget(t, target)
}

// statPath is statAt for the plain path calls, where a null path is an
// invalid address rather than an absent one.
func (l *LinuxOS) statPath(t *process.Process, path usermem.CString) (file.Kstat, error) {
	p, err := path.Load(t.Memory)
	if err != nil {
		return file.Kstat{}, err
	}
	target, err := fspath.Resolve(t, unix.AT_FDCWD, p, true, 0)
	if err != nil {
		return file.Kstat{}, err
	}
	return l.statTarget(t, target)
}

func (l *LinuxOS) SysStat(t *process.Process, path usermem.CString, buf usermem.Ptr[unix.Stat_t]) error {
	k, err := l.statPath(t, path)
	if err != nil {
		return err
	}
	return buf.Store(t.Memory, k.Stat())
}

// SysLstat is SysStat: there are no symbolic links to not follow.
func (l *LinuxOS) SysLstat(t *process.Process, path usermem.CString, buf usermem.Ptr[unix.Stat_t]) error {
	return l.SysStat(t, path, buf)
}

func (l *LinuxOS) SysFstat(t *process.Process, fd int, buf usermem.Ptr[unix.Stat_t]) error {
	k, err := file.StatFD(t.Files, fd)
	if err != nil {
		return err
	}
	return buf.Store(t.Memory, k.Stat())
}

// SysNewfstatat ignores AT_SYMLINK_NOFOLLOW, like SysLstat.
func (l *LinuxOS) SysNewfstatat(t *process.Process, dirfd int, path usermem.CString, buf usermem.Ptr[unix.Stat_t], flags int) error {
	k, err := l.statAt(t, dirfd, path, flags)
	if err != nil {
		return err
	}
	return buf.Store(t.Memory, k.Stat())
}

// SysStatx fills every basic field regardless of mask.
func (l *LinuxOS) SysStatx(t *process.Process, dirfd int, path usermem.CString, flags int, mask uint32, buf usermem.Ptr[unix.Statx_t]) error {
	k, err := l.statAt(t, dirfd, path, flags)
	if err != nil {
		return err
	}
	return buf.Store(t.Memory, k.Statx())
}

// SysStatfs reports the same placeholder numbers for every path that
// exists.
func (l *LinuxOS) SysStatfs(t *process.Process, path usermem.CString, buf usermem.Ptr[unix.Statfs_t]) error {
	p, err := path.Load(t.Memory)
	if err != nil {
		return err
	}
	target, err := fspath.Resolve(t, unix.AT_FDCWD, p, true, 0)
	if err != nil {
		return err
	}
	f, err := file.OpenPath(l.backend, target.Path)
	if err != nil {
		return err
	}
	f.Close()
	return buf.Store(t.Memory, file.StatFS())
}

func (l *LinuxOS) SysFstatfs(t *process.Process, fd int, buf usermem.Ptr[unix.Statfs_t]) error {
	if _, err := t.Files.Get(fd); err != nil {
		return err
	}
	return buf.Store(t.Memory, file.StatFS())
}
