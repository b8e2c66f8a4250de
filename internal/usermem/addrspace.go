// Package usermem is the boundary between kernel code and user memory.
//
// User addresses are never dereferenced directly. Every access goes
// through an IO, which checks the whole range against the process's
// mappings and their permissions before copying a single byte. Nothing
// is remembered between calls: a pointer that was valid for one syscall
// is checked again on the next one, since mappings can change in
// between. The window between a check and the copy that follows it is
// not closed here; that needs the mapping subsystem's cooperation.
package usermem

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/linuxerr"
)

// Addr is a user virtual address.
type Addr uint64

// PageSize is the granularity of mappings.
const PageSize = 4096

// RoundUp rounds a up to the next page boundary.
func (a Addr) RoundUp() (Addr, bool) {
	r := (a + PageSize - 1) &^ (PageSize - 1)
	return r, r >= a
}

// AddLength returns a+n, or false on overflow.
func (a Addr) AddLength(n uint64) (Addr, bool) {
	end := a + Addr(n)
	return end, end >= a
}

func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// AccessType is the kind of access a copy performs.
type AccessType struct {
	Read    bool
	Write   bool
	Execute bool
}

var (
	NoAccess  = AccessType{}
	Read      = AccessType{Read: true}
	Write     = AccessType{Write: true}
	ReadWrite = AccessType{Read: true, Write: true}
	AnyAccess = AccessType{Read: true, Write: true, Execute: true}
)

// SupersetOf returns true if every access allowed by other is allowed
// by a.
func (a AccessType) SupersetOf(other AccessType) bool {
	return (a.Read || !other.Read) && (a.Write || !other.Write) && (a.Execute || !other.Execute)
}

func (a AccessType) String() string {
	b := []byte("---")
	if a.Read {
		b[0] = 'r'
	}
	if a.Write {
		b[1] = 'w'
	}
	if a.Execute {
		b[2] = 'x'
	}
	return string(b)
}

// IO is the interface the syscall layer uses to reach user memory.
type IO interface {
	// CopyIn copies len(dst) bytes from addr into dst. Either all bytes are
	// copied or none are and EFAULT is returned.
	CopyIn(addr Addr, dst []byte) error

	// CopyOut copies src to addr. Either all bytes are copied or none are
	// and EFAULT is returned.
	CopyOut(addr Addr, src []byte) error

	// Check validates that n bytes at addr allow access.
	Check(addr Addr, n uint64, access AccessType) error
}

// A mapping is a contiguous, page-aligned range [start, end) with a
// single set of permissions, backed by kernel memory.
type mapping struct {
	start, end Addr
	perms      AccessType
	data       []byte
}

func (m *mapping) contains(a Addr) bool {
	return m.start <= a && a < m.end
}

func mappingLess(a, b *mapping) bool {
	return a.start < b.start
}

// AddressSpace is the set of mappings of one process.
type AddressSpace struct {
	mu sync.RWMutex

	// mappings is ordered by start address; entries never overlap.
	mappings *btree.BTreeG[*mapping]

	// brk is where Allocate looks for free space first.
	brk Addr
}

// allocBase is the lowest address Allocate hands out. Everything below
// MinAddr stays unmapped so that small integers are never valid pointers.
const (
	MinAddr   Addr = PageSize
	allocBase Addr = 0x10000
)

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		mappings: btree.NewG(8, mappingLess),
		brk:      allocBase,
	}
}

// lookupLocked returns the mapping containing a, if any.
func (as *AddressSpace) lookupLocked(a Addr) (*mapping, bool) {
	var found *mapping
	as.mappings.DescendLessOrEqual(&mapping{start: a}, func(m *mapping) bool {
		if m.contains(a) {
			found = m
		}
		return false
	})
	return found, found != nil
}

func (as *AddressSpace) overlapsLocked(start, end Addr) bool {
	if _, ok := as.lookupLocked(start); ok {
		return true
	}
	overlaps := false
	as.mappings.AscendGreaterOrEqual(&mapping{start: start}, func(m *mapping) bool {
		overlaps = m.start < end
		return false
	})
	return overlaps
}

func checkRange(start Addr, length uint64) (Addr, error) {
	if start%PageSize != 0 || length == 0 || start < MinAddr {
		return 0, linuxerr.InvalidArgument
	}
	end, ok := start.AddLength(length)
	if !ok {
		return 0, linuxerr.InvalidArgument
	}
	end, ok = end.RoundUp()
	if !ok {
		return 0, linuxerr.InvalidArgument
	}
	return end, nil
}

// Map creates a zero-filled mapping of length bytes at start. The range
// must be page aligned, above MinAddr and not overlap existing mappings.
func (as *AddressSpace) Map(start Addr, length uint64, perms AccessType) error {
	end, err := checkRange(start, length)
	if err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if as.overlapsLocked(start, end) {
		return linuxerr.InvalidArgument
	}
	as.mappings.ReplaceOrInsert(&mapping{
		start: start,
		end:   end,
		perms: perms,
		data:  make([]byte, end-start),
	})
	return nil
}

// Allocate maps length bytes at the first free address at or above the
// allocation base and returns the start address.
func (as *AddressSpace) Allocate(length uint64, perms AccessType) (Addr, error) {
	if length == 0 {
		return 0, linuxerr.InvalidArgument
	}
	size, ok := Addr(length).RoundUp()
	if !ok {
		return 0, linuxerr.InvalidArgument
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	start := as.brk
	for {
		end, ok := start.AddLength(uint64(size))
		if !ok {
			return 0, linuxerr.InvalidArgument
		}
		if !as.overlapsLocked(start, end) {
			as.mappings.ReplaceOrInsert(&mapping{
				start: start,
				end:   end,
				perms: perms,
				data:  make([]byte, size),
			})
			as.brk = end
			return start, nil
		}
		// Skip past whatever is in the way.
		if m, ok := as.lookupLocked(start); ok {
			start = m.end
			continue
		}
		as.mappings.AscendGreaterOrEqual(&mapping{start: start}, func(m *mapping) bool {
			start = m.end
			return false
		})
	}
}

// splitLocked makes a a mapping boundary, if a falls inside a mapping.
func (as *AddressSpace) splitLocked(a Addr) {
	m, ok := as.lookupLocked(a)
	if !ok || m.start == a {
		return
	}
	off := a - m.start
	right := &mapping{
		start: a,
		end:   m.end,
		perms: m.perms,
		data:  m.data[off:],
	}
	m.end = a
	m.data = m.data[:off:off]
	as.mappings.ReplaceOrInsert(right)
}

// carveLocked splits mappings at start and end and returns the mappings
// entirely inside [start, end).
func (as *AddressSpace) carveLocked(start, end Addr) []*mapping {
	as.splitLocked(start)
	as.splitLocked(end)
	var inside []*mapping
	as.mappings.AscendRange(&mapping{start: start}, &mapping{start: end}, func(m *mapping) bool {
		inside = append(inside, m)
		return true
	})
	return inside
}

// Unmap removes every mapping in [start, start+length). Unmapping a range
// with holes, or with nothing mapped at all, is not an error.
func (as *AddressSpace) Unmap(start Addr, length uint64) error {
	end, err := checkRange(start, length)
	if err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	for _, m := range as.carveLocked(start, end) {
		as.mappings.Delete(m)
	}
	return nil
}

// Protect changes the permissions of [start, start+length). Every byte in
// the range must be mapped.
func (as *AddressSpace) Protect(start Addr, length uint64, perms AccessType) error {
	end, err := checkRange(start, length)
	if err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.checkLocked(start, uint64(end-start), NoAccess); err != nil {
		// mprotect(2) reports holes as ENOMEM.
		return unix.ENOMEM
	}
	for _, m := range as.carveLocked(start, end) {
		m.perms = perms
	}
	return nil
}

// walkLocked validates [addr, addr+n) and calls fn for each piece of
// backing memory, in order.
func (as *AddressSpace) walkLocked(addr Addr, n uint64, access AccessType, fn func(b []byte)) error {
	end, ok := addr.AddLength(n)
	if !ok {
		return linuxerr.InvalidAddress
	}
	type piece struct {
		m        *mapping
		from, to Addr
	}
	var pieces []piece
	cur := addr
	for cur < end {
		m, ok := as.lookupLocked(cur)
		if !ok || !m.perms.SupersetOf(access) {
			return linuxerr.InvalidAddress
		}
		to := min(end, m.end)
		pieces = append(pieces, piece{m: m, from: cur, to: to})
		cur = to
	}
	if fn != nil {
		for _, p := range pieces {
			fn(p.m.data[p.from-p.m.start : p.to-p.m.start])
		}
	}
	return nil
}

func (as *AddressSpace) checkLocked(addr Addr, n uint64, access AccessType) error {
	return as.walkLocked(addr, n, access, nil)
}

// Check implements IO.Check.
func (as *AddressSpace) Check(addr Addr, n uint64, access AccessType) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.checkLocked(addr, n, access)
}

// CopyIn implements IO.CopyIn.
func (as *AddressSpace) CopyIn(addr Addr, dst []byte) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.walkLocked(addr, uint64(len(dst)), Read, func(b []byte) {
		n := copy(dst, b)
		dst = dst[n:]
	})
}

// CopyOut implements IO.CopyOut.
func (as *AddressSpace) CopyOut(addr Addr, src []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.walkLocked(addr, uint64(len(src)), Write, func(b []byte) {
		n := copy(b, src)
		src = src[n:]
	})
}

// NumMappings returns the number of distinct mappings.
func (as *AddressSpace) NumMappings() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.mappings.Len()
}
