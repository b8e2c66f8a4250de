package file

import (
	"time"

	"golang.org/x/sys/unix"
)

// Kstat is file metadata in the kernel's own form. Stat and Statx render
// it in the two user ABI layouts.
type Kstat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize uint32
	Blocks  uint64 // in 512-byte units

	Atime unix.Timespec
	Mtime unix.Timespec
	Ctime unix.Timespec
}

func timespec(t time.Time) unix.Timespec {
	if t.IsZero() {
		return unix.Timespec{}
	}
	return unix.NsecToTimespec(t.UnixNano())
}

// KstatFromAttr converts backend attributes. Blocks is derived from the
// size.
func KstatFromAttr(a Attr) Kstat {
	blksize := a.Blksize
	if blksize == 0 {
		blksize = DefaultBlockSize
	}
	var blocks uint64
	if a.Size > 0 {
		blocks = (uint64(a.Size) + 511) / 512
	}
	return Kstat{
		Dev:     a.Dev,
		Ino:     a.Ino,
		Mode:    a.Mode,
		Nlink:   a.Nlink,
		UID:     a.UID,
		GID:     a.GID,
		Rdev:    a.Rdev,
		Size:    a.Size,
		Blksize: blksize,
		Blocks:  blocks,
		Atime:   timespec(a.Atime),
		Mtime:   timespec(a.Mtime),
		Ctime:   timespec(a.Ctime),
	}
}

func statxTimestamp(ts unix.Timespec) unix.StatxTimestamp {
	return unix.StatxTimestamp{Sec: ts.Sec, Nsec: uint32(ts.Nsec)}
}

func fromStatxTimestamp(ts unix.StatxTimestamp) unix.Timespec {
	return unix.Timespec{Sec: ts.Sec, Nsec: int64(ts.Nsec)}
}

// Statx renders k as struct statx. Every basic field is filled in, so the
// mask is STATX_BASIC_STATS regardless of what was asked for; birth time
// is not tracked.
func (k Kstat) Statx() unix.Statx_t {
	return unix.Statx_t{
		Mask:       unix.STATX_BASIC_STATS,
		Blksize:    k.Blksize,
		Nlink:      k.Nlink,
		Uid:        k.UID,
		Gid:        k.GID,
		Mode:       uint16(k.Mode),
		Ino:        k.Ino,
		Size:       uint64(k.Size),
		Blocks:     k.Blocks,
		Atime:      statxTimestamp(k.Atime),
		Ctime:      statxTimestamp(k.Ctime),
		Mtime:      statxTimestamp(k.Mtime),
		Rdev_major: unix.Major(k.Rdev),
		Rdev_minor: unix.Minor(k.Rdev),
		Dev_major:  unix.Major(k.Dev),
		Dev_minor:  unix.Minor(k.Dev),
	}
}

// KstatFromStatx is the inverse of Kstat.Statx.
func KstatFromStatx(s unix.Statx_t) Kstat {
	return Kstat{
		Dev:     unix.Mkdev(s.Dev_major, s.Dev_minor),
		Ino:     s.Ino,
		Mode:    uint32(s.Mode),
		Nlink:   s.Nlink,
		UID:     s.Uid,
		GID:     s.Gid,
		Rdev:    unix.Mkdev(s.Rdev_major, s.Rdev_minor),
		Size:    int64(s.Size),
		Blksize: s.Blksize,
		Blocks:  s.Blocks,
		Atime:   fromStatxTimestamp(s.Atime),
		Mtime:   fromStatxTimestamp(s.Mtime),
		Ctime:   fromStatxTimestamp(s.Ctime),
	}
}
