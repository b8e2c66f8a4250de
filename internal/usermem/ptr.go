package usermem

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
	"unsafe"

	"github.com/kmrgirish/starry/internal/linuxerr"
)

// Ptr is a user address tagged with the type it points to. It is not a
// reference: Load and Store validate the address every time they are
// called.
//
// T must be a fixed-size type as understood by encoding/binary. Values are
// laid out in native byte order, which for the unix.* ABI structs is
// exactly the layout the kernel ABI specifies.
type Ptr[T any] struct {
	Addr Addr
}

// PtrTo returns a typed pointer for a raw syscall argument.
func PtrTo[T any](addr uintptr) Ptr[T] {
	return Ptr[T]{Addr: Addr(addr)}
}

// IsNull reports whether the pointer is the null sentinel.
func (p Ptr[T]) IsNull() bool {
	return p.Addr == 0
}

func sizeAndAlign[T any]() (uint64, uintptr) {
	var zero T
	return uint64(binary.Size(zero)), unsafe.Alignof(zero)
}

// Check validates that the pointee is accessible for access and properly
// aligned, without copying.
func (p Ptr[T]) Check(io IO, access AccessType) error {
	size, align := sizeAndAlign[T]()
	if int64(size) < 0 || uintptr(p.Addr)%align != 0 {
		return linuxerr.InvalidAddress
	}
	return io.Check(p.Addr, size, access)
}

// Load copies the pointee in from user memory.
func (p Ptr[T]) Load(io IO) (T, error) {
	var v T
	if err := p.Check(io, Read); err != nil {
		return v, err
	}
	size, _ := sizeAndAlign[T]()
	buf := make([]byte, size)
	if err := io.CopyIn(p.Addr, buf); err != nil {
		return v, err
	}
	if _, err := binary.Decode(buf, binary.NativeEndian, &v); err != nil {
		return v, linuxerr.InvalidAddress
	}
	return v, nil
}

// LoadOptional is Load for arguments where Linux treats a null pointer as
// "not provided". A null pointer yields ok == false and no error.
func (p Ptr[T]) LoadOptional(io IO) (v T, ok bool, err error) {
	if p.IsNull() {
		return v, false, nil
	}
	v, err = p.Load(io)
	return v, err == nil, err
}

// Store copies v out to user memory.
func (p Ptr[T]) Store(io IO, v T) error {
	if err := p.Check(io, Write); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, v); err != nil {
		return linuxerr.InvalidAddress
	}
	return io.CopyOut(p.Addr, buf.Bytes())
}

// PathMax is the longest path, including its NUL, that CString accepts by
// default.
const PathMax = 4096

// CString is the address of a NUL-terminated user string.
type CString struct {
	Addr Addr
}

// CStringAt returns a CString for a raw syscall argument.
func CStringAt(addr uintptr) CString {
	return CString{Addr: Addr(addr)}
}

// IsNull reports whether the string pointer is the null sentinel.
func (s CString) IsNull() bool {
	return s.Addr == 0
}

// Load copies the string in, up to PathMax bytes.
func (s CString) Load(io IO) (string, error) {
	return s.LoadMax(io, PathMax)
}

// LoadMax copies the string in. Every byte up to and including the NUL
// must be readable (EFAULT), the NUL must appear within maxlen bytes
// (ENAMETOOLONG) and the contents must be valid UTF-8 (EILSEQ).
func (s CString) LoadMax(io IO, maxlen int) (string, error) {
	var buf []byte
	var b [1]byte
	for i := 0; i < maxlen; i++ {
		addr, ok := s.Addr.AddLength(uint64(i))
		if !ok {
			return "", linuxerr.InvalidAddress
		}
		if err := io.CopyIn(addr, b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			if !utf8.Valid(buf) {
				return "", linuxerr.InvalidEncoding
			}
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", linuxerr.NameTooLong
}

// LoadOptional is Load for arguments where a null pointer means "no
// path". A null pointer yields ok == false and no error.
func (s CString) LoadOptional(io IO) (str string, ok bool, err error) {
	if s.IsNull() {
		return "", false, nil
	}
	str, err = s.Load(io)
	return str, err == nil, err
}

// CopyStringOut writes str and a terminating NUL to addr.
func CopyStringOut(io IO, addr Addr, str string) error {
	buf := make([]byte, len(str)+1)
	copy(buf, str)
	return io.CopyOut(addr, buf)
}
