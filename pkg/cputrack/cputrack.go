// Package cputrack accounts process CPU and wall time to named phases.
package cputrack

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Times is the time spent in a phase.
type Times struct {
	User   time.Duration
	System time.Duration
	Wall   time.Duration
	Calls  int
}

func (t Times) add(o Times) Times {
	return Times{
		User:   t.User + o.User,
		System: t.System + o.System,
		Wall:   t.Wall + o.Wall,
		Calls:  t.Calls + o.Calls,
	}
}

// Tracker collects times per phase. A nil Tracker runs functions untracked.
//
// CPU times are those of the whole process, so phases running in parallel
// share them.
type Tracker struct {
	mu     sync.Mutex
	proc   *process.Process
	phases map[string]Times
}

// New returns a tracker for the current process. When process times are not
// available only wall time is recorded.
func New() *Tracker {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Tracker{proc: proc, phases: make(map[string]Times)}
}

func (t *Tracker) cpu() (user, system time.Duration) {
	if t.proc == nil {
		return 0, 0
	}
	ts, err := t.proc.Times()
	if err != nil {
		return 0, 0
	}
	return seconds(ts.User), seconds(ts.System)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Track runs fn and adds the time it took to phase.
func (t *Tracker) Track(phase string, fn func()) {
	if t == nil {
		fn()
		return
	}

	startUser, startSys := t.cpu()
	start := time.Now()
	defer func() {
		endUser, endSys := t.cpu()
		spent := Times{
			User:   max(endUser-startUser, 0),
			System: max(endSys-startSys, 0),
			Wall:   time.Since(start),
			Calls:  1,
		}
		t.mu.Lock()
		t.phases[phase] = t.phases[phase].add(spent)
		t.mu.Unlock()
	}()
	fn()
}

// Phase returns the times of one phase.
func (t *Tracker) Phase(phase string) Times {
	if t == nil {
		return Times{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phases[phase]
}

// Phases returns the tracked phase names in order.
func (t *Tracker) Phases() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.phases))
	for name := range t.phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
