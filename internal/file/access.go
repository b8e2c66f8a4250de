package file

import (
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/linuxerr"
)

// AccessMode is the mode argument of access(2): a set of R_OK, W_OK and
// X_OK. The zero value is F_OK.
type AccessMode uint32

const (
	MayExist AccessMode = 0 // F_OK
	MayRead  AccessMode = unix.R_OK
	MayWrite AccessMode = unix.W_OK
	MayExec  AccessMode = unix.X_OK

	allAccess = MayRead | MayWrite | MayExec
)

// ParseAccessMode validates a raw mode argument. Unknown bits are EINVAL.
func ParseAccessMode(mode uint32) (AccessMode, error) {
	m := AccessMode(mode)
	if m&^allAccess != 0 {
		return 0, linuxerr.InvalidArgument
	}
	return m, nil
}

func (m AccessMode) String() string {
	if m == MayExist {
		return "F_OK"
	}
	b := []byte("---")
	if m&MayRead != 0 {
		b[0] = 'r'
	}
	if m&MayWrite != 0 {
		b[1] = 'w'
	}
	if m&MayExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Check tests m against the owner bits of p. Access is granted when any
// requested bit is present in the owner bits; group and other bits are
// not consulted.
func (m AccessMode) Check(p Perm) error {
	if m == MayExist {
		return nil
	}
	if m&MayRead != 0 && p.OwnerReadable() {
		return nil
	}
	if m&MayWrite != 0 && p.OwnerWritable() {
		return nil
	}
	if m&MayExec != 0 && p.OwnerExecutable() {
		return nil
	}
	return linuxerr.AccessDenied
}
