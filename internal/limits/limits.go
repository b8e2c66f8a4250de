// Package limits implements per-process resource limits (rlimits).
package limits

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kmrgirish/starry/internal/linuxerr"
)

// Kind is a resource whose consumption is limited. The values match the
// Linux RLIMIT_* numbering, so a Kind can be converted to and from the raw
// resource argument of getrlimit(2) directly.
type Kind int

const (
	CPU Kind = iota
	FileSize
	Data
	Stack
	Core
	Rss
	ProcessCount
	NumberOfFiles
	MemoryLocked
	AS
	Locks
	SignalsPending
	MessageQueueBytes
	Nice
	RealTimePriority
	Rttime

	// NumKinds is the number of kinds (RLIM_NLIMITS).
	NumKinds = iota
)

var kindNames = [NumKinds]string{
	CPU:               "cpu",
	FileSize:          "fsize",
	Data:              "data",
	Stack:             "stack",
	Core:              "core",
	Rss:               "rss",
	ProcessCount:      "nproc",
	NumberOfFiles:     "nofile",
	MemoryLocked:      "memlock",
	AS:                "as",
	Locks:             "locks",
	SignalsPending:    "sigpending",
	MessageQueueBytes: "msgqueue",
	Nice:              "nice",
	RealTimePriority:  "rtprio",
	Rttime:            "rttime",
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the NumKinds known kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < NumKinds
}

// FromLinuxResource maps a raw resource number to a Kind. Unknown
// resources are EINVAL.
func FromLinuxResource(resource int) (Kind, error) {
	k := Kind(resource)
	if !k.Valid() {
		return 0, linuxerr.InvalidArgument
	}
	return k, nil
}

// ParseKind maps a name like "nofile" (or "RLIMIT_NOFILE") to a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.TrimPrefix(strings.ToLower(name), "rlimit_")
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown resource limit %q", name)
}

// Infinity is RLIM_INFINITY.
const Infinity = ^uint64(0)

// Limit is a (soft, hard) bound. Soft is the enforced ceiling; hard is
// the ceiling soft may be raised to.
type Limit struct {
	Soft uint64
	Hard uint64
}

func formatValue(v uint64) string {
	if v == Infinity {
		return "unlimited"
	}
	return fmt.Sprint(v)
}

func (l Limit) String() string {
	return formatValue(l.Soft) + ":" + formatValue(l.Hard)
}

func parseValue(s string) (uint64, error) {
	if s == "unlimited" || s == "infinity" {
		return Infinity, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// ParseLimit parses the "soft:hard" form printed by Limit.String. A
// single value sets both.
func ParseLimit(s string) (Limit, error) {
	softText, hardText, ok := strings.Cut(s, ":")
	if !ok {
		hardText = softText
	}
	soft, err := parseValue(softText)
	if err != nil {
		return Limit{}, fmt.Errorf("bad limit %q: %w", s, err)
	}
	hard, err := parseValue(hardText)
	if err != nil {
		return Limit{}, fmt.Errorf("bad limit %q: %w", s, err)
	}
	return Limit{Soft: soft, Hard: hard}, nil
}

// Table holds one Limit per Kind. A process owns exactly one Table; all
// access is serialized by mu, which is held only for the duration of a
// single read or read-modify-write.
type Table struct {
	mu   sync.Mutex
	data [NumKinds]Limit
}

// NewTable returns a table with every limit set to unlimited.
func NewTable() *Table {
	t := &Table{}
	for k := range t.data {
		t.data[k] = Limit{Soft: Infinity, Hard: Infinity}
	}
	return t
}

// Get returns a copy of the limit for k.
func (t *Table) Get(k Kind) Limit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data[k]
}

// SetUnchecked stores l without any validation. It is for boot-time
// defaults only.
func (t *Table) SetUnchecked(k Kind, l Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[k] = l
}

// Set replaces the limit for k and returns the previous value.
//
// Raising the hard limit above its current value is EPERM; a soft limit
// above the new hard limit is EINVAL. On error the stored limit is
// unchanged.
func (t *Table) Set(k Kind, l Limit) (Limit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.data[k]
	if l.Hard > old.Hard {
		return old, linuxerr.NotPermitted
	}
	if l.Soft > l.Hard {
		return old, linuxerr.InvalidArgument
	}
	t.data[k] = l
	return old, nil
}

// Copy returns an independent table with the same limits, for a child
// process.
func (t *Table) Copy() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Table{data: t.data}
}
