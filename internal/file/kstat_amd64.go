package file

import "golang.org/x/sys/unix"

// Stat renders k as the x86-64 struct stat.
func (k Kstat) Stat() unix.Stat_t {
	return unix.Stat_t{
		Dev:     k.Dev,
		Ino:     k.Ino,
		Nlink:   uint64(k.Nlink),
		Mode:    k.Mode,
		Uid:     k.UID,
		Gid:     k.GID,
		Rdev:    k.Rdev,
		Size:    k.Size,
		Blksize: int64(k.Blksize),
		Blocks:  int64(k.Blocks),
		Atim:    k.Atime,
		Mtim:    k.Mtime,
		Ctim:    k.Ctime,
	}
}

// KstatFromStat is the inverse of Kstat.Stat.
func KstatFromStat(s unix.Stat_t) Kstat {
	return Kstat{
		Dev:     s.Dev,
		Ino:     s.Ino,
		Mode:    s.Mode,
		Nlink:   uint32(s.Nlink),
		UID:     s.Uid,
		GID:     s.Gid,
		Rdev:    s.Rdev,
		Size:    s.Size,
		Blksize: uint32(s.Blksize),
		Blocks:  uint64(s.Blocks),
		Atime:   s.Atim,
		Mtime:   s.Mtim,
		Ctime:   s.Ctim,
	}
}
