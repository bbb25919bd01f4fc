package process

import (
	"errors"
	"sync"
)

// ErrNotRunnable is returned when a process outside the ready state is
// handed to Schedule.
var ErrNotRunnable = errors.New("process is not ready to run")

// Scheduler interface defines the contract for process scheduling.
type Scheduler interface {
	// Schedule adds a process to the run queue.
	Schedule(p *Process) error
	// GetNextRunnable returns the next process to run, or nil when every
	// queue is empty.
	GetNextRunnable() *Process
	// Remove removes a process from the scheduler.
	Remove(pid int) error
	// Len returns the number of runnable processes.
	Len() int
}

// runQueue is a FIFO of ready processes with O(1) membership checks, one
// per priority level.
type runQueue struct {
	items []*Process
	index map[int]bool
}

func newRunQueue() *runQueue {
	return &runQueue{index: make(map[int]bool)}
}

func (q *runQueue) push(p *Process) {
	q.items = append(q.items, p)
	q.index[p.PID] = true
}

func (q *runQueue) pop() *Process {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	delete(q.index, p.PID)
	return p
}

func (q *runQueue) remove(pid int) bool {
	if !q.index[pid] {
		return false
	}
	for i, p := range q.items {
		if p.PID == pid {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	delete(q.index, pid)
	return true
}

// PriorityScheduler implements strict-priority FIFO scheduling: the
// highest non-empty priority queue is drained first, processes of equal
// priority run in Schedule order.
type PriorityScheduler struct {
	mu     sync.Mutex
	queues [4]*runQueue
}

// NewPriorityScheduler creates a scheduler with one run queue per
// priority level.
func NewPriorityScheduler() *PriorityScheduler {
	s := &PriorityScheduler{}
	for i := range s.queues {
		s.queues[i] = newRunQueue()
	}
	return s
}

// Schedule implements Scheduler. The process must be ready to run.
func (s *PriorityScheduler) Schedule(p *Process) error {
	if p.GetState() != StateReady {
		return ErrNotRunnable
	}
	prio := p.Priority
	if prio < PriorityLow || prio > PriorityCritical {
		prio = PriorityNormal
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[prio].push(p)
	return nil
}

// GetNextRunnable implements Scheduler, scanning from PriorityCritical
// down to PriorityLow.
func (s *PriorityScheduler) GetNextRunnable() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	for prio := PriorityCritical; prio >= PriorityLow; prio-- {
		if p := s.queues[prio].pop(); p != nil {
			return p
		}
	}
	return nil
}

// Remove implements Scheduler. Removing an unknown pid is a no-op.
func (s *PriorityScheduler) Remove(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		if q.remove(pid) {
			return nil
		}
	}
	return nil
}

// Len implements Scheduler.
func (s *PriorityScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queues {
		n += len(q.items)
	}
	return n
}
