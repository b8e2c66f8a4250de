package usermem_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/usermem"
)

func newSpace(t *testing.T) *usermem.AddressSpace {
	t.Helper()
	as := usermem.NewAddressSpace()
	if err := as.Map(0x100000, 2*usermem.PageSize, usermem.ReadWrite); err != nil {
		t.Fatal(err)
	}
	if err := as.Map(0x200000, usermem.PageSize, usermem.Read); err != nil {
		t.Fatal(err)
	}
	return as
}

func TestMapRejects(t *testing.T) {
	as := newSpace(t)
	testCases := []struct {
		name   string
		start  usermem.Addr
		length uint64
	}{
		{"null page", 0, usermem.PageSize},
		{"unaligned", 0x300001, usermem.PageSize},
		{"empty", 0x300000, 0},
		{"overlap start", 0x101000, usermem.PageSize},
		{"overlap covering", 0xff000, 4 * usermem.PageSize},
		{"overflow", ^usermem.Addr(0) &^ (usermem.PageSize - 1), 2 * usermem.PageSize},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := as.Map(tc.start, tc.length, usermem.ReadWrite); !errors.Is(err, unix.EINVAL) {
				t.Errorf("Map(%v, %d) = %v, want EINVAL", tc.start, tc.length, err)
			}
		})
	}
}

func TestCopyInOut(t *testing.T) {
	as := newSpace(t)

	// Straddles the page boundary inside one mapping.
	want := []byte("hello, kernel")
	addr := usermem.Addr(0x100000 + usermem.PageSize - 5)
	if err := as.CopyOut(addr, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(want))
	if err := as.CopyIn(addr, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCopyFaults(t *testing.T) {
	as := newSpace(t)
	buf := make([]byte, 16)

	testCases := []struct {
		name string
		fn   func() error
	}{
		{"read unmapped", func() error { return as.CopyIn(0x500000, buf) }},
		{"read null", func() error { return as.CopyIn(0, buf) }},
		{"write read-only", func() error { return as.CopyOut(0x200000, buf) }},
		{"read past end", func() error { return as.CopyIn(0x100000+2*usermem.PageSize-8, buf) }},
		{"wraparound", func() error { return as.CopyIn(^usermem.Addr(0)-4, buf) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, unix.EFAULT) {
				t.Errorf("got %v, want EFAULT", err)
			}
		})
	}
}

func TestFailedCopyOutWritesNothing(t *testing.T) {
	as := newSpace(t)
	end := usermem.Addr(0x100000 + 2*usermem.PageSize)
	if err := as.CopyOut(end-4, []byte("12345678")); !errors.Is(err, unix.EFAULT) {
		t.Fatalf("got %v, want EFAULT", err)
	}
	got := make([]byte, 4)
	if err := as.CopyIn(end-4, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 0, 0, 0}, got); diff != "" {
		t.Errorf("partial write happened (-want +got):\n%s", diff)
	}
}

func TestProtectAndUnmapSplit(t *testing.T) {
	as := newSpace(t)
	second := usermem.Addr(0x100000 + usermem.PageSize)

	if err := as.Protect(second, usermem.PageSize, usermem.Read); err != nil {
		t.Fatal(err)
	}
	if got := as.NumMappings(); got != 3 {
		t.Errorf("NumMappings = %d, want 3 after split", got)
	}
	if err := as.CopyOut(second, []byte{1}); !errors.Is(err, unix.EFAULT) {
		t.Errorf("write to protected page = %v, want EFAULT", err)
	}
	if err := as.CopyOut(0x100000, []byte{1}); err != nil {
		t.Errorf("write to first page = %v, want nil", err)
	}

	if err := as.Unmap(0x100000, usermem.PageSize); err != nil {
		t.Fatal(err)
	}
	if err := as.CopyIn(0x100000, []byte{0}); !errors.Is(err, unix.EFAULT) {
		t.Errorf("read unmapped page = %v, want EFAULT", err)
	}
	if err := as.CopyIn(second, []byte{0}); err != nil {
		t.Errorf("read remaining page = %v, want nil", err)
	}

	if err := as.Protect(0x400000, usermem.PageSize, usermem.Read); !errors.Is(err, unix.ENOMEM) {
		t.Errorf("Protect of hole = %v, want ENOMEM", err)
	}
}

func TestAllocateSkipsMappings(t *testing.T) {
	as := usermem.NewAddressSpace()
	if err := as.Map(0x10000, usermem.PageSize, usermem.Read); err != nil {
		t.Fatal(err)
	}
	a, err := as.Allocate(100, usermem.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	if a != 0x11000 {
		t.Errorf("Allocate = %v, want 0x11000", a)
	}
	b, err := as.Allocate(usermem.PageSize+1, usermem.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x12000 {
		t.Errorf("Allocate = %v, want 0x12000", b)
	}
}

func TestPtrRoundTrip(t *testing.T) {
	as := newSpace(t)
	p := usermem.Ptr[unix.Rlimit]{Addr: 0x100010}

	want := unix.Rlimit{Cur: 100, Max: 200}
	if err := p.Store(as, want); err != nil {
		t.Fatal(err)
	}
	got, err := p.Load(as)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	raw := make([]byte, 16)
	if err := as.CopyIn(p.Addr, raw); err != nil {
		t.Fatal(err)
	}
	if raw[0] != 100 || raw[8] != 200 {
		t.Errorf("unexpected layout % x", raw)
	}
}

func TestPtrStatLayout(t *testing.T) {
	as := newSpace(t)
	p := usermem.Ptr[unix.Stat_t]{Addr: 0x100000}
	if err := p.Store(as, unix.Stat_t{Ino: 42, Size: 500000}); err != nil {
		t.Fatal(err)
	}
	got, err := p.Load(as)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ino != 42 || got.Size != 500000 {
		t.Errorf("got ino=%d size=%d", got.Ino, got.Size)
	}
}

func TestPtrFaults(t *testing.T) {
	as := newSpace(t)

	if err := (usermem.Ptr[unix.Rlimit]{Addr: 0x100004}).Store(as, unix.Rlimit{}); !errors.Is(err, unix.EFAULT) {
		t.Errorf("misaligned store = %v, want EFAULT", err)
	}
	if err := (usermem.Ptr[unix.Rlimit]{Addr: 0x200000}).Store(as, unix.Rlimit{}); !errors.Is(err, unix.EFAULT) {
		t.Errorf("read-only store = %v, want EFAULT", err)
	}
	if _, err := (usermem.Ptr[unix.Rlimit]{Addr: 0x200000}).Load(as); err != nil {
		t.Errorf("read-only load = %v, want nil", err)
	}
	if _, err := (usermem.Ptr[unix.Stat_t]{Addr: 0x900000}).Load(as); !errors.Is(err, unix.EFAULT) {
		t.Errorf("unmapped load = %v, want EFAULT", err)
	}
}

func TestPtrLoadOptional(t *testing.T) {
	as := newSpace(t)

	_, ok, err := usermem.Ptr[unix.Rlimit]{}.LoadOptional(as)
	if ok || err != nil {
		t.Errorf("null LoadOptional = %v, %v; want absent", ok, err)
	}
	_, ok, err = usermem.Ptr[unix.Rlimit]{Addr: 0x900000}.LoadOptional(as)
	if ok || !errors.Is(err, unix.EFAULT) {
		t.Errorf("bad LoadOptional = %v, %v; want EFAULT", ok, err)
	}
}

func TestCString(t *testing.T) {
	as := newSpace(t)
	if err := usermem.CopyStringOut(as, 0x100000, "/musl/busybox"); err != nil {
		t.Fatal(err)
	}
	got, err := usermem.CString{Addr: 0x100000}.Load(as)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/musl/busybox" {
		t.Errorf("got %q", got)
	}

	// Empty string is a valid, present string.
	got, ok, err := usermem.CString{Addr: 0x100100}.LoadOptional(as)
	if got != "" || !ok || err != nil {
		t.Errorf("empty LoadOptional = %q, %v, %v", got, ok, err)
	}

	_, ok, err = usermem.CString{}.LoadOptional(as)
	if ok || err != nil {
		t.Errorf("null LoadOptional = %v, %v; want absent", ok, err)
	}
}

func TestCStringFaults(t *testing.T) {
	as := newSpace(t)
	end := usermem.Addr(0x100000 + 2*usermem.PageSize)

	// No NUL before the end of the mapping.
	if err := as.CopyOut(end-3, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := (usermem.CString{Addr: end - 3}).Load(as); !errors.Is(err, unix.EFAULT) {
		t.Errorf("unterminated = %v, want EFAULT", err)
	}

	if err := as.CopyOut(0x100000, []byte{'a', 0xff, 0xfe, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := (usermem.CString{Addr: 0x100000}).Load(as); !errors.Is(err, unix.EILSEQ) {
		t.Errorf("invalid utf-8 = %v, want EILSEQ", err)
	}

	if err := as.CopyOut(0x100000, bytes.Repeat([]byte{'a'}, 64)); err != nil {
		t.Fatal(err)
	}
	if _, err := (usermem.CString{Addr: 0x100000}).LoadMax(as, 32); !errors.Is(err, unix.ENAMETOOLONG) {
		t.Errorf("too long = %v, want ENAMETOOLONG", err)
	}
}
