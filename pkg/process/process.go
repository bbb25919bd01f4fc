package process

import (
	"sync"
	"time"

	"netkern/pkg/netcore"
)

// ProcessState represents the state of a process in the system.
type ProcessState string

const (
	// StateRunning indicates the process is currently executing.
	StateRunning ProcessState = "running"
	// StateWaiting indicates the process is blocked waiting for I/O or events.
	StateWaiting ProcessState = "waiting"
	// StateReady indicates the process is ready to run but waiting for CPU.
	StateReady ProcessState = "ready"
	// StateZombie indicates the process has terminated but hasn't been reaped.
	StateZombie ProcessState = "zombie"
)

// Priority represents process scheduling priority.
type Priority int

const (
	// PriorityLow is the lowest priority level.
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Process represents a virtual process in the system: a process-table
// entry owning network sockets, or a kernel task carrying a worker entry
// point the scheduler dispatches.
type Process struct {
	// PID is the unique process identifier.
	PID int
	// ParentPID is the PID of the parent process.
	ParentPID int
	// State is the current process state.
	State ProcessState
	// ExitCode is the process exit code (valid when state is Zombie).
	ExitCode int
	// CreatedAt is when the process was created.
	CreatedAt time.Time
	// StartedAt is when the process started executing.
	StartedAt time.Time
	// FinishedAt is when the process finished executing.
	FinishedAt time.Time
	// Command is the executable name, or the kernel task's name.
	Command string
	// Args is the command-line arguments.
	Args []string
	// Priority is the scheduling priority.
	Priority Priority

	// entry is the kernel task's body; nil for ordinary processes. The
	// manager's dispatch loop invokes it once the scheduler hands the
	// process out.
	entry func()

	// mu protects mutable process state.
	mu sync.Mutex

	// sockets holds this process's open network sockets by fd, the
	// process-table half of the netcore socket table contract.
	sockets      map[int]*netcore.Socket
	nextSocketFD int
}

// NewProcess creates a new process with the given configuration.
func NewProcess(pid int, parentPID int, command string, args []string) *Process {
	return &Process{
		PID:       pid,
		ParentPID: parentPID,
		State:     StateReady,
		Command:   command,
		Args:      args,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
		sockets:   make(map[int]*netcore.Socket),
	}
}

// SetState atomically sets the process state.
func (p *Process) SetState(state ProcessState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = state
}

// GetState atomically gets the process state.
func (p *Process) GetState() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

// AddSocket stores sock under a freshly allocated fd and returns it.
func (p *Process) AddSocket(sock *netcore.Socket) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextSocketFD
	p.nextSocketFD++
	p.sockets[fd] = sock
	return fd
}

// GetSocket returns the socket registered under fd.
func (p *Process) GetSocket(fd int) (*netcore.Socket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sock, ok := p.sockets[fd]
	return sock, ok
}

// RemoveSocket drops fd's socket entry, if present.
func (p *Process) RemoveSocket(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sockets, fd)
}

// ListSockets returns a snapshot of all open sockets.
func (p *Process) ListSockets() []*netcore.Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*netcore.Socket, 0, len(p.sockets))
	for _, sock := range p.sockets {
		out = append(out, sock)
	}
	return out
}

// releaseSockets drops every socket entry, called when the process is
// terminated so its socket table does not outlive it.
func (p *Process) releaseSockets() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sockets = make(map[int]*netcore.Socket)
}
