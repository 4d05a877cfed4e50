// Package scheduler serializes all competition state mutation onto one control goroutine.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrStopped is returned by Call once the loop has been stopped.
var ErrStopped = eris.New("scheduler stopped")

// Scheduler runs callbacks after a delay on the control goroutine.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// Loop is the single control goroutine. Tasks run one at a time in submission order.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates a loop with the given task buffer. Start must be called before tasks run.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the control goroutine.
func (l *Loop) Start() {
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			// Drain what was queued before Stop.
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Run enqueues fn without waiting for it. Tasks submitted after Stop are dropped.
func (l *Loop) Run(fn func()) {
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case l.tasks <- fn:
	case <-l.quit:
	}
}

// Call enqueues fn and waits for it to finish. If ctx expires first the task still runs later.
// Call must not be used from inside a loop task.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case <-l.quit:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler call not queued")
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler call timed out")
	}
}

// After runs fn on the loop once d has elapsed. The returned cancel prevents a pending run.
func (l *Loop) After(d time.Duration, fn func()) func() {
	var mu sync.Mutex
	cancelled := false
	timer := time.AfterFunc(d, func() {
		l.Run(func() {
			mu.Lock()
			skip := cancelled
			mu.Unlock()
			if !skip {
				fn()
			}
		})
	})
	return func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		timer.Stop()
	}
}

// Stop runs the queued tasks and terminates the control goroutine. It is safe to call more than once.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

type manualTask struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// Manual is a Scheduler driven by the caller. Nothing runs until Advance is called.
type Manual struct {
	now   time.Duration
	seq   int
	tasks []*manualTask
}

// NewManual returns a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// After records fn to run once the clock has advanced by d.
func (m *Manual) After(d time.Duration, fn func()) func() {
	m.seq++
	task := &manualTask{at: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return func() { task.cancelled = true }
}

// Advance moves the clock forward and runs every due task in due-time order.
// Tasks scheduled by running tasks are honored if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.popDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		next.fn()
	}
	m.now = target
}

// Pending returns the number of tasks not yet run or cancelled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	return m.now
}

func (m *Manual) popDue(target time.Duration) *manualTask {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at != m.tasks[j].at {
			return m.tasks[i].at < m.tasks[j].at
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	if len(m.tasks) == 0 || m.tasks[0].at > target {
		return nil
	}
	t := m.tasks[0]
	m.tasks = m.tasks[1:]
	return t
}
