package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/file"
	"github.com/kmrgirish/starry/internal/fspath"
	"github.com/kmrgirish/starry/internal/linuxerr"
	"github.com/kmrgirish/starry/internal/process"
	"github.com/kmrgirish/starry/internal/usermem"
)

const faccessatFlags = unix.AT_EACCESS | unix.AT_SYMLINK_NOFOLLOW | unix.AT_EMPTY_PATH

func (l *LinuxOS) SysAccess(t *process.Process, path usermem.CString, mode uint32) error {
	return l.SysFaccessat2(t, unix.AT_FDCWD, path, mode, 0)
}

func (l *LinuxOS) SysFaccessat(t *process.Process, dirfd int, path usermem.CString, mode uint32) error {
	return l.SysFaccessat2(t, dirfd, path, mode, 0)
}

// SysFaccessat2 checks mode against the owner permission bits of the
// target. A mode of F_OK succeeds without looking the path up. Otherwise
// the call succeeds when any one of the requested bits is granted.
// AT_EACCESS makes no difference as there is no separate effective id.
func (l *LinuxOS) SysFaccessat2(t *process.Process, dirfd int, path usermem.CString, mode uint32, flags int) error {
	if flags&^faccessatFlags != 0 {
		return linuxerr.InvalidArgument
	}
	p, present, err := path.LoadOptional(t.Memory)
	if err != nil {
		return err
	}
	want, err := file.ParseAccessMode(mode)
	if err != nil {
		return err
	}
	if want == file.MayExist {
		return nil
	}

	target, err := fspath.Resolve(t, dirfd, p, present, flags)
	if err != nil {
		return err
	}

	var attr file.Attr
	switch {
	case target.Direct && target.FD != unix.AT_FDCWD:
		f, err := t.Files.Get(target.FD)
		if err != nil {
			return err
		}
		if attr, err = f.Attr(); err != nil {
			return err
		}
	default:
		name := target.Path
		if target.Direct {
			name = t.Cwd()
		}
		f, err := file.OpenPath(l.backend, name)
		if err != nil {
			return err
		}
		attr, err = f.Attr()
		f.Close()
		if err != nil {
			return err
		}
	}
	return want.Check(attr.Perm())
}
