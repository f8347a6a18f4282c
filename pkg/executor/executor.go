// Package executor provides a serialized task queue. All orchestration
// state in this module is mutated from a single executor, so no two
// pieces of call logic ever run concurrently with each other.
package executor

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/tevino/abool"
)

type Executor struct {
	mu      sync.Mutex
	tasks   deque.Deque
	wake    chan struct{}
	stopped *abool.AtomicBool
	done    chan struct{}
}

func New() *Executor {
	e := &Executor{
		wake:    make(chan struct{}, 1),
		stopped: abool.New(),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Post queues task behind everything already queued and returns
// immediately. A task posted from within a running task executes on a
// later turn, never reentrantly; this is the deferral used to keep an
// engine callback from deadlocking against a host command.
func (e *Executor) Post(task func()) bool {
	e.mu.Lock()
	if e.stopped.IsSet() {
		e.mu.Unlock()
		return false
	}
	e.tasks.PushBack(task)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Do queues task and waits for it to complete. Must not be called from
// within a task on the same executor.
func (e *Executor) Do(task func()) bool {
	ran := make(chan struct{})
	if !e.Post(func() {
		defer close(ran)
		task()
	}) {
		return false
	}
	<-ran
	return true
}

// Stop drains the queued tasks and waits for the run loop to exit.
// Further Post calls are dropped.
func (e *Executor) Stop() {
	e.mu.Lock()
	first := e.stopped.SetToIf(false, true)
	e.mu.Unlock()
	if !first {
		<-e.done
		return
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
	<-e.done
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		if e.tasks.Len() == 0 {
			stopped := e.stopped.IsSet()
			e.mu.Unlock()
			if stopped {
				return
			}
			<-e.wake
			continue
		}
		task := e.tasks.PopFront().(func())
		e.mu.Unlock()
		task()
	}
}
