package limits

// Default values from Linux's INIT_RLIMITS.
const (
	stackLimit   = 8 << 20 // _STK_LIM
	memlockLimit = 8 << 20 // MLOCK_LIMIT
	mqueueBytes  = 819200  // MQ_BYTES_MAX
	nrOpen       = 1 << 20 // NR_OPEN
	initOpen     = 1024    // INR_OPEN_CUR
	initOpenMax  = 4096    // INR_OPEN_MAX
)

var initLimits = [NumKinds]Limit{
	CPU:               {Infinity, Infinity},
	FileSize:          {Infinity, Infinity},
	Data:              {Infinity, Infinity},
	Stack:             {stackLimit, Infinity},
	Core:              {0, Infinity},
	Rss:               {Infinity, Infinity},
	ProcessCount:      {0, 0},
	NumberOfFiles:     {initOpen, initOpenMax},
	MemoryLocked:      {memlockLimit, memlockLimit},
	AS:                {Infinity, Infinity},
	Locks:             {Infinity, Infinity},
	SignalsPending:    {0, 0},
	MessageQueueBytes: {mqueueBytes, mqueueBytes},
	Nice:              {0, 0},
	RealTimePriority:  {0, 0},
	Rttime:            {Infinity, Infinity},
}

// NewLinuxTable returns a Table whose values match the initial rlimits
// of a freshly booted Linux kernel, before init adjusts them.
func NewLinuxTable() *Table {
	t := &Table{}
	t.data = initLimits
	return t
}

// NewLinuxDistroTable returns a Table with values typical for a booted
// distribution. The kernel sizes nproc and sigpending from memory at
// boot; the value here is fixed.
func NewLinuxDistroTable() *Table {
	t := NewLinuxTable()
	const tasks = 1 << 20
	t.SetUnchecked(ProcessCount, Limit{Soft: tasks, Hard: tasks})
	t.SetUnchecked(SignalsPending, Limit{Soft: tasks, Hard: tasks})
	t.SetUnchecked(NumberOfFiles, Limit{Soft: initOpen, Hard: nrOpen})
	return t
}
