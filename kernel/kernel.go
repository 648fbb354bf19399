// Package kernel implements a cooperative, priority-scheduled task table for
// single-goroutine executives. The kernel owns no goroutines and takes no
// locks; exactly one owner drives Tick, Schedule and Dispatch.
package kernel

import (
	"time"

	"rtcore-go/errcode"
	"rtcore-go/x/mathx"
)

// -----------------------------------------------------------------------------
// Task model
// -----------------------------------------------------------------------------

// Priority orders tasks for selection; lower values win.
type Priority uint8

const (
	Critical Priority = iota
	High
	Normal
	Low
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps a config/console spelling to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "critical":
		return Critical, true
	case "high":
		return High, true
	case "normal", "":
		return Normal, true
	case "low":
		return Low, true
	default:
		return Normal, false
	}
}

// State is a task's lifecycle position. A task is Ready exactly when its
// wait counter is zero.
type State uint8

const (
	Ready State = iota
	Waiting
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Waiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// TaskID identifies a task for the lifetime of the kernel. IDs are assigned
// sequentially from 1 and never reused; the task table is append-only.
type TaskID int

// TaskFunc is a task body. Each dispatch runs it to completion; a body yields
// by re-arming itself with Delay before returning. A nil body is legal and
// dispatches as a no-op.
type TaskFunc func(id TaskID)

type task struct {
	id        TaskID
	name      string
	priority  Priority
	state     State
	waitTicks uint32
	stack     []byte // reservation for accounting; bodies run on the owner's stack
	fn        TaskFunc
	runs      uint32
}

// TaskInfo is a copy of one task's control block for telemetry.
type TaskInfo struct {
	ID        TaskID
	Name      string
	Priority  Priority
	State     State
	WaitTicks uint32
	StackSize int
	Runs      uint32
}

// -----------------------------------------------------------------------------
// Kernel
// -----------------------------------------------------------------------------

const (
	DefaultTickHz    = 1000
	DefaultMaxTasks  = 16
	DefaultStackSize = 1024
)

type Config struct {
	TickHz    uint32 // timer tick rate the delay conversion assumes
	MaxTasks  int    // task table capacity
	StackSize int    // per-task stack reservation when Create gets none
}

type Kernel struct {
	cfg     Config
	tasks   []*task
	current TaskID // 0 when nothing is scheduled
	ticks   uint64
}

// New creates a kernel. Zero config fields take defaults.
func New(cfg Config) *Kernel {
	if cfg.TickHz == 0 {
		cfg.TickHz = DefaultTickHz
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = DefaultMaxTasks
	}
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	return &Kernel{
		cfg:   cfg,
		tasks: make([]*task, 0, cfg.MaxTasks),
	}
}

// TickHz returns the configured tick rate.
func (k *Kernel) TickHz() uint32 { return k.cfg.TickHz }

// MaxTasks returns the task table capacity.
func (k *Kernel) MaxTasks() int { return k.cfg.MaxTasks }

// Create adds a task in the Ready state and returns its id. stackSize <= 0
// takes the configured default.
func (k *Kernel) Create(name string, prio Priority, stackSize int, fn TaskFunc) (TaskID, error) {
	if len(k.tasks) >= k.cfg.MaxTasks {
		return 0, errcode.CapacityExceeded
	}
	if prio > Low {
		return 0, errcode.InvalidParams
	}
	if stackSize <= 0 {
		stackSize = k.cfg.StackSize
	}
	t := &task{
		id:       TaskID(len(k.tasks) + 1),
		name:     name,
		priority: prio,
		state:    Ready,
		stack:    make([]byte, stackSize),
		fn:       fn,
	}
	k.tasks = append(k.tasks, t)
	return t.id, nil
}

// Schedule selects the best Ready task (lowest priority value, then lowest
// id) and records it as current. It runs nothing. With no Ready task it
// clears current and reports false.
func (k *Kernel) Schedule() (TaskID, bool) {
	var best *task
	for _, t := range k.tasks {
		if t.state != Ready {
			continue
		}
		if best == nil || t.priority < best.priority {
			best = t
		}
	}
	if best == nil {
		k.current = 0
		return 0, false
	}
	k.current = best.id
	return best.id, true
}

// Dispatch performs Schedule and runs the winner's body to completion.
func (k *Kernel) Dispatch() (TaskID, bool) {
	id, ok := k.Schedule()
	if !ok {
		return 0, false
	}
	t := k.tasks[id-1]
	t.runs++
	if t.fn != nil {
		t.fn(id)
	}
	return id, true
}

// Delay parks a task for d. The duration converts to whole milliseconds,
// then to ticks as ms*TickHz/1000 rounded down, with a one-tick minimum for
// any positive millisecond count. Zero and negative durations leave the task
// Ready with a zero wait.
func (k *Kernel) Delay(id TaskID, d time.Duration) error {
	t, ok := k.task(id)
	if !ok {
		return errcode.TaskNotFound
	}
	ms := d.Milliseconds()
	if ms <= 0 {
		t.waitTicks = 0
		t.state = Ready
		return nil
	}
	ticks := uint32(uint64(ms) * uint64(k.cfg.TickHz) / 1000)
	t.waitTicks = mathx.Max(ticks, 1)
	t.state = Waiting
	return nil
}

// Tick advances the timebase: every Waiting task counts down once and wakes
// at zero. This is the timer path, so it never allocates, never schedules
// and never fails.
func (k *Kernel) Tick() {
	k.ticks++
	for _, t := range k.tasks {
		if t.state != Waiting {
			continue
		}
		if t.waitTicks > 1 {
			t.waitTicks--
			continue
		}
		t.waitTicks = 0
		t.state = Ready
	}
}

// -----------------------------------------------------------------------------
// Introspection
// -----------------------------------------------------------------------------

// Current returns the task id recorded by the last Schedule.
func (k *Kernel) Current() (TaskID, bool) {
	if k.current == 0 {
		return 0, false
	}
	return k.current, true
}

// Len returns the number of created tasks.
func (k *Kernel) Len() int { return len(k.tasks) }

// TickCount returns ticks elapsed since creation.
func (k *Kernel) TickCount() uint64 { return k.ticks }

// Info returns a copy of one task's control block.
func (k *Kernel) Info(id TaskID) (TaskInfo, bool) {
	t, ok := k.task(id)
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(), true
}

// Snapshot appends every task's info to dst and returns it. Callers reuse
// dst across cycles to keep the telemetry path allocation-free.
func (k *Kernel) Snapshot(dst []TaskInfo) []TaskInfo {
	for _, t := range k.tasks {
		dst = append(dst, t.info())
	}
	return dst
}

func (t *task) info() TaskInfo {
	return TaskInfo{
		ID:        t.id,
		Name:      t.name,
		Priority:  t.priority,
		State:     t.state,
		WaitTicks: t.waitTicks,
		StackSize: len(t.stack),
		Runs:      t.runs,
	}
}

func (k *Kernel) task(id TaskID) (*task, bool) {
	i := int(id) - 1
	if i < 0 || i >= len(k.tasks) {
		return nil, false
	}
	return k.tasks[i], true
}
