package netcore

import (
	"context"
	"sync"
)

// fakeSocketTable is a minimal in-memory SocketTable stand-in for tests
// that don't need a real process table.
type fakeSocketTable struct {
	mu      sync.Mutex
	sockets map[int]map[int]*Socket
	states  map[int]ProcessState
	nextFD  map[int]int
}

func newFakeSocketTable() *fakeSocketTable {
	return &fakeSocketTable{
		sockets: make(map[int]map[int]*Socket),
		states:  make(map[int]ProcessState),
		nextFD:  make(map[int]int),
	}
}

func (f *fakeSocketTable) RegisterNewSocket(pid int, sock *Socket) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sockets[pid] == nil {
		f.sockets[pid] = make(map[int]*Socket)
	}
	fd := f.nextFD[pid]
	f.nextFD[pid]++
	f.sockets[pid][fd] = sock
	f.states[pid] = ProcessRunning
	return fd
}

func (f *fakeSocketTable) HasSocket(pid, fd int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sockets[pid][fd]
	return ok
}

func (f *fakeSocketTable) GetSocket(pid, fd int) (*Socket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sockets[pid][fd]
	return s, ok
}

func (f *fakeSocketTable) ReleaseSocket(pid, fd int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sockets[pid], fd)
}

func (f *fakeSocketTable) Pids() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pids := make([]int, 0, len(f.sockets))
	for pid := range f.sockets {
		pids = append(pids, pid)
	}
	return pids
}

func (f *fakeSocketTable) State(pid int) ProcessState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[pid]
}

func (f *fakeSocketTable) Sockets(pid int) []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Socket, 0, len(f.sockets[pid]))
	for _, s := range f.sockets[pid] {
		out = append(out, s)
	}
	return out
}

// fakeSpawner runs SpawnTask's fn inline in its own goroutine, same as the
// real scheduler, but with no scheduler bookkeeping behind it.
type fakeSpawner struct {
	mu  sync.Mutex
	ids int
}

func (f *fakeSpawner) SpawnTask(name string, fn func(ctx context.Context)) (int, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.ids++
	id := f.ids
	f.mu.Unlock()
	go fn(ctx)
	return id, cancel
}

// newTestStack returns a Stack with one enabled loopback interface. No link
// codec or hwSend is attached; tests that need one set it themselves.
func newTestStack() (*Stack, *Interface) {
	registry := NewInterfaceRegistry()
	iface := registry.Register("lo")
	iface.Enabled = true
	iface.Loopback = true
	stack := NewStack(registry, newFakeSocketTable(), &fakeSpawner{}, nil)
	return stack, iface
}
