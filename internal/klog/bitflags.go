package klog

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// BitflagChoice is a multi-bit field inside a flag word; exactly one of
// Values applies.
type BitflagChoice struct {
	Mask   int
	Values map[int]string
}

type BitflagValue struct {
	Value int
	Name  string
}

// BitflagFormatter renders flag words like "AT_EMPTY_PATH|0x40". Bits it
// has no name for are printed in hex.
type BitflagFormatter struct {
	Choices []BitflagChoice
	Flags   []BitflagValue
	// Zero is printed for a zero word with no matching choice.
	Zero string
}

func (f *BitflagFormatter) Format(value int) string {
	var parts []string
	for _, choice := range f.Choices {
		masked := value & choice.Mask
		value &^= masked
		if got, ok := choice.Values[masked]; ok {
			parts = append(parts, got)
		} else {
			parts = append(parts, "0x"+strconv.FormatInt(int64(masked), 16))
		}
	}
	for _, flag := range f.Flags {
		if value&flag.Value == flag.Value {
			value &^= flag.Value
			parts = append(parts, flag.Name)
		}
	}
	if value != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(uint32(value)), 16))
	}
	if len(parts) == 0 {
		return f.Zero
	}
	return strings.Join(parts, "|")
}

// AtFlags formats the flags argument of the *at syscalls.
var AtFlags = &BitflagFormatter{
	Flags: []BitflagValue{
		{Value: unix.AT_EMPTY_PATH, Name: "AT_EMPTY_PATH"},
		{Value: unix.AT_SYMLINK_NOFOLLOW, Name: "AT_SYMLINK_NOFOLLOW"},
		{Value: unix.AT_EACCESS, Name: "AT_EACCESS"},
		{Value: unix.AT_NO_AUTOMOUNT, Name: "AT_NO_AUTOMOUNT"},
	},
	Zero: "0",
}

// AccessModes formats the mode argument of access(2).
var AccessModes = &BitflagFormatter{
	Flags: []BitflagValue{
		{Value: unix.R_OK, Name: "R_OK"},
		{Value: unix.W_OK, Name: "W_OK"},
		{Value: unix.X_OK, Name: "X_OK"},
	},
	Zero: "F_OK",
}

// StatxMask formats the mask argument of statx(2).
var StatxMask = &BitflagFormatter{
	Flags: []BitflagValue{
		{Value: unix.STATX_BASIC_STATS, Name: "STATX_BASIC_STATS"},
		{Value: unix.STATX_TYPE, Name: "STATX_TYPE"},
		{Value: unix.STATX_MODE, Name: "STATX_MODE"},
		{Value: unix.STATX_NLINK, Name: "STATX_NLINK"},
		{Value: unix.STATX_UID, Name: "STATX_UID"},
		{Value: unix.STATX_GID, Name: "STATX_GID"},
		{Value: unix.STATX_ATIME, Name: "STATX_ATIME"},
		{Value: unix.STATX_MTIME, Name: "STATX_MTIME"},
		{Value: unix.STATX_CTIME, Name: "STATX_CTIME"},
		{Value: unix.STATX_INO, Name: "STATX_INO"},
		{Value: unix.STATX_SIZE, Name: "STATX_SIZE"},
		{Value: unix.STATX_BLOCKS, Name: "STATX_BLOCKS"},
		{Value: unix.STATX_BTIME, Name: "STATX_BTIME"},
	},
	Zero: "0",
}
