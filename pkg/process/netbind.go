package process

import (
	"context"

	"netkern/pkg/netcore"
)

// RegisterNewSocket implements netcore.SocketTable: it creates pid's process
// entry on first use (so a caller can open sockets for a pid before ever
// calling CreateProcess, the way a kernel's socket() syscall does not
// require the caller to have already forked) and stores sock under a fresh
// per-process fd.
func (pm *ProcessManager) RegisterNewSocket(pid int, sock *netcore.Socket) int {
	p := pm.ensureProcess(pid)
	return p.AddSocket(sock)
}

// HasSocket implements netcore.SocketTable.
func (pm *ProcessManager) HasSocket(pid, fd int) bool {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return false
	}
	_, ok := p.GetSocket(fd)
	return ok
}

// GetSocket implements netcore.SocketTable.
func (pm *ProcessManager) GetSocket(pid, fd int) (*netcore.Socket, bool) {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return nil, false
	}
	return p.GetSocket(fd)
}

// ReleaseSocket implements netcore.SocketTable. Unknown pid/fd is a no-op,
// matching Stack.Close's idempotence.
func (pm *ProcessManager) ReleaseSocket(pid, fd int) {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return
	}
	p.RemoveSocket(fd)
}

// Pids implements netcore.SocketTable: every process currently tracked,
// regardless of lifecycle state. PropagatePacket filters by State itself.
func (pm *ProcessManager) Pids() []int {
	pids := make([]int, 0)
	pm.processes.Range(func(key, value interface{}) bool {
		pids = append(pids, key.(int))
		return true
	})
	return pids
}

// State implements netcore.SocketTable, translating the process package's
// own state machine into the dispatcher's coarser ProcessState.
func (pm *ProcessManager) State(pid int) netcore.ProcessState {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return netcore.ProcessEmpty
	}
	switch p.GetState() {
	case StateZombie:
		return netcore.ProcessKilled
	case StateReady:
		return netcore.ProcessNew
	case StateRunning:
		return netcore.ProcessRunning
	case StateWaiting:
		return netcore.ProcessWaiting
	default:
		return netcore.ProcessEmpty
	}
}

// Sockets implements netcore.SocketTable.
func (pm *ProcessManager) Sockets(pid int) []*netcore.Socket {
	p, err := pm.GetProcess(pid)
	if err != nil {
		return nil
	}
	return p.ListSockets()
}

// ensureProcess returns pid's process entry, creating a minimal one if this
// is the first time the network subsystem has seen it. Sockets opened this
// way belong to a process the scheduler never created directly, which is
// normal for test harnesses and for cmd/netcored's synthetic client pids.
func (pm *ProcessManager) ensureProcess(pid int) *Process {
	if p, err := pm.GetProcess(pid); err == nil {
		return p
	}
	p := NewProcess(pid, 0, "netsock", nil)
	p.SetState(StateRunning)
	pm.processes.Store(pid, p)
	return p
}

// SpawnTask implements netcore.TaskSpawner, the Go analogue of
// create_kernel_task_args followed by queue_system_process: it creates a
// kernel-task process entry under parent pid 1, queues it through the
// priority scheduler, and lets the manager's dispatch loop launch it. The
// returned task id is the task's pid; cancelling the context makes the
// worker's entry return, after which the dispatch loop reaps the task.
func (pm *ProcessManager) SpawnTask(name string, fn func(ctx context.Context)) (int, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	p := pm.CreateKernelTask(name, 1, func() { fn(ctx) })
	if err := pm.QueueSystemProcess(p.PID); err != nil {
		cancel()
		return 0, func() {}
	}
	return p.PID, cancel
}

var _ netcore.SocketTable = (*ProcessManager)(nil)
var _ netcore.TaskSpawner = (*ProcessManager)(nil)
