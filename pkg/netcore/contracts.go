package netcore

import "context"

// ProcessState mirrors the scheduler's process lifecycle states relevant
// to dispatch: a process only receives propagated packets once it is
// past New and before Killed.
type ProcessState int

const (
	ProcessEmpty ProcessState = iota
	ProcessNew
	ProcessRunning
	ProcessWaiting
	ProcessKilled
)

// liveForDispatch reports whether a process in this state participates in
// PropagatePacket's iteration.
func (s ProcessState) liveForDispatch() bool {
	return s != ProcessEmpty && s != ProcessNew && s != ProcessKilled
}

// SocketTable is the scheduler/process-registry contract: per-pid socket
// registration, lookup, and release, plus the process-lifecycle
// enumeration the dispatcher needs. pkg/process supplies the concrete
// implementation backing a real process table; tests can supply a
// trivial stand-in.
type SocketTable interface {
	// RegisterNewSocket allocates a socket fd for pid and stores sock
	// under it.
	RegisterNewSocket(pid int, sock *Socket) int
	HasSocket(pid, fd int) bool
	GetSocket(pid, fd int) (*Socket, bool)
	ReleaseSocket(pid, fd int)

	// Pids, State, and Sockets back the dispatcher's iteration over
	// live process slots.
	Pids() []int
	State(pid int) ProcessState
	Sockets(pid int) []*Socket
}

// TaskSpawner is the Go analogue of the source kernel's
// create_kernel_task_args: it starts a long-running worker under the
// scheduler's supervision and returns a task id for bookkeeping plus a
// cancel function Stack.Shutdown uses to stop it.
type TaskSpawner interface {
	SpawnTask(name string, fn func(ctx context.Context)) (taskID int, cancel context.CancelFunc)
}
