package file

import "golang.org/x/sys/unix"

// StatFS returns the filesystem statistics reported for every path. The
// numbers are fixed placeholders; nothing is measured.
func StatFS() unix.Statfs_t {
	return unix.Statfs_t{
		Type:    unix.EXT4_SUPER_MAGIC,
		Bsize:   4096,
		Blocks:  100000,
		Bfree:   50000,
		Bavail:  40000,
		Files:   1000,
		Ffree:   500,
		Namelen: 255,
		Frsize:  4096,
	}
}
