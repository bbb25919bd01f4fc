package process

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Process creation errors.
var (
	ErrInvalidPID     = errors.New("invalid PID")
	ErrInvalidCommand = errors.New("invalid command")
)

// CreateConfig contains configuration for creating a new process.
type CreateConfig struct {
	// Command is the executable name or path.
	Command string
	// Args is the command-line arguments.
	Args []string
	// ParentPID is the PID of the parent process.
	ParentPID int
	// Priority is the scheduling priority.
	Priority Priority
}

// ProcessManager manages all processes in the system: the process table,
// the run-queue scheduler, and the dispatch loop that launches queued
// kernel tasks.
type ProcessManager struct {
	// processes holds all processes by PID.
	processes sync.Map
	// pidCounter generates unique PIDs.
	pidCounter int32
	// Scheduler manages the ready queue kernel tasks pass through
	// between QueueSystemProcess and dispatch.
	Scheduler Scheduler

	// runnable nudges the dispatch loop after a Schedule; buffered so a
	// queuing caller never blocks on it.
	runnable     chan struct{}
	dispatchOnce sync.Once
}

// NewProcessManager creates a new process manager. Manager-allocated
// pids start above the low range callers hand to the socket table
// directly, so a kernel task never shares a pid with a user process
// registered through ensureProcess.
func NewProcessManager(scheduler Scheduler) *ProcessManager {
	return &ProcessManager{
		pidCounter: 1000,
		Scheduler:  scheduler,
		runnable:   make(chan struct{}, 1),
	}
}

// allocatePID allocates a new unique PID.
func (pm *ProcessManager) allocatePID() int {
	return int(atomic.AddInt32(&pm.pidCounter, 1))
}

// CreateProcess creates a new process with the given configuration.
func (pm *ProcessManager) CreateProcess(config *CreateConfig) (*Process, error) {
	if config.Command == "" {
		return nil, ErrInvalidCommand
	}

	p := NewProcess(pm.allocatePID(), config.ParentPID, config.Command, config.Args)
	p.Priority = config.Priority
	pm.processes.Store(p.PID, p)
	return p, nil
}

// CreateKernelTask creates a process-table entry for a long-running
// kernel worker. The entry function runs once the task has been queued
// through QueueSystemProcess and the dispatch loop picks it up.
func (pm *ProcessManager) CreateKernelTask(name string, parentPID int, entry func()) *Process {
	p := NewProcess(pm.allocatePID(), parentPID, name, nil)
	p.entry = entry
	pm.processes.Store(p.PID, p)
	return p
}

// QueueSystemProcess hands pid to the scheduler's run queue and nudges
// the dispatch loop, which launches the task's entry in its own
// goroutine once the scheduler selects it.
func (pm *ProcessManager) QueueSystemProcess(pid int) error {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return err
	}
	if err := pm.Scheduler.Schedule(p); err != nil {
		return err
	}

	pm.dispatchOnce.Do(func() { go pm.dispatch() })
	select {
	case pm.runnable <- struct{}{}:
	default:
	}
	return nil
}

// dispatch drains the scheduler whenever QueueSystemProcess signals it,
// launching each selected task and reaping it when its entry returns.
func (pm *ProcessManager) dispatch() {
	for range pm.runnable {
		for {
			p := pm.Scheduler.GetNextRunnable()
			if p == nil {
				break
			}
			if err := p.Start(); err != nil {
				continue
			}
			go func(p *Process) {
				if p.entry != nil {
					p.entry()
				}
				pm.Terminate(p.PID, 0)
			}(p)
		}
	}
}

// GetProcess retrieves a process by PID.
func (pm *ProcessManager) GetProcess(pid int) (*Process, error) {
	v, ok := pm.processes.Load(pid)
	if !ok {
		return nil, ErrInvalidPID
	}
	return v.(*Process), nil
}

// IsProcessAlive reports whether pid exists and has not terminated.
func (pm *ProcessManager) IsProcessAlive(pid int) bool {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return false
	}
	return p.IsAlive()
}

// Terminate marks pid as a zombie, releases its sockets so they do not
// outlive it, pulls it off the run queue, and reaps the table entry.
func (pm *ProcessManager) Terminate(pid int, exitCode int) error {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return err
	}
	if err := p.Terminate(exitCode); err != nil {
		return err
	}
	p.releaseSockets()
	pm.Scheduler.Remove(pid)
	pm.processes.Delete(pid)
	return nil
}
