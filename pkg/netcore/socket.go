package netcore

import (
	"net"
	"sync"
	"time"
)

// Domain is the socket address family. Only AF_INET is accepted.
type Domain uint8

const DomainINET Domain = 1

// SocketType is the socket type requested at Open.
type SocketType uint8

const (
	SocketRAW SocketType = iota
	SocketDGRAM
	SocketSTREAM
)

// Protocol is the socket-level protocol, distinct from the wire-level IP
// protocol numbers the netstack codecs use: it is the {ICMP, DNS, TCP}
// taxonomy the socket API exposes to callers, not {ICMP, TCP, UDP}.
type Protocol uint8

const (
	ProtocolICMP Protocol = iota
	ProtocolDNS
	ProtocolTCP
)

// SocketStatus is a socket's lifecycle state.
type SocketStatus uint8

const (
	StatusNew SocketStatus = iota
	StatusListening
	StatusConnected
	StatusDestroyed
)

// Socket is a single process's handle onto the network subsystem: protocol
// state, the pending outbound-packet table, and the inbound delivery
// queue. Sockets are created by Stack.Open and destroyed by Stack.Close or
// when their owning process is reaped.
type Socket struct {
	FD       int
	PID      int
	Domain   Domain
	Type     SocketType
	Protocol Protocol

	mu         sync.Mutex
	listen     bool
	connected  bool
	localPort  uint16
	serverPort uint16
	serverAddr net.IP

	pendingPackets map[int]*Packet
	nextPacketFD   int

	listenPackets []*Packet
	listenQueue   *waitQueue
}

func newSocket(pid, fd int, domain Domain, typ SocketType, proto Protocol) *Socket {
	return &Socket{
		FD:             fd,
		PID:            pid,
		Domain:         domain,
		Type:           typ,
		Protocol:       proto,
		pendingPackets: make(map[int]*Packet),
		listenQueue:    newWaitQueue(),
	}
}

// Listen reports the current listen flag, consulted by the dispatcher.
func (s *Socket) Listen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listen
}

func (s *Socket) setListen(v bool) {
	s.mu.Lock()
	s.listen = v
	s.mu.Unlock()
}

// Connected reports whether a STREAM socket has completed Connect.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Socket) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// LocalPort returns the socket's allocated source port (0 if unbound).
func (s *Socket) LocalPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPort
}

func (s *Socket) setLocalPort(p uint16) {
	s.mu.Lock()
	s.localPort = p
	s.mu.Unlock()
}

// ServerAddr/ServerPort are the remote endpoint recorded by Connect.
func (s *Socket) ServerAddr() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverAddr
}

func (s *Socket) ServerPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverPort
}

func (s *Socket) setServer(addr net.IP, port uint16) {
	s.mu.Lock()
	s.serverAddr = addr
	s.serverPort = port
	s.mu.Unlock()
}

// RegisterPacket stores an in-flight prepared outbound packet and returns
// its socket-local packet fd.
func (s *Socket) RegisterPacket(pkt *Packet) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd := s.nextPacketFD
	s.nextPacketFD++
	s.pendingPackets[fd] = pkt
	return fd
}

// HasPacket reports whether packetFD is registered.
func (s *Socket) HasPacket(packetFD int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingPackets[packetFD]
	return ok
}

// GetPacket returns the packet registered under packetFD.
func (s *Socket) GetPacket(packetFD int) (*Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt, ok := s.pendingPackets[packetFD]
	return pkt, ok
}

// ErasePacket removes packetFD's pending entry.
func (s *Socket) ErasePacket(packetFD int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingPackets, packetFD)
}

// Deliver pushes pkt onto the socket's inbound FIFO and wakes a sleeper.
// The dispatcher calls this for every matching RAW/DGRAM socket on a
// propagated packet; protocol codecs that own a single connection (TCP)
// call it directly instead of going through PropagatePacket's broadcast
// scan.
func (s *Socket) Deliver(pkt *Packet) {
	s.mu.Lock()
	s.listenPackets = append(s.listenPackets, pkt)
	s.mu.Unlock()
	s.listenQueue.wakeUp()
}

// popListenPacket removes and returns the oldest buffered inbound packet,
// or nil if none is queued.
func (s *Socket) popListenPacket() *Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listenPackets) == 0 {
		return nil
	}
	pkt := s.listenPackets[0]
	s.listenPackets = s.listenPackets[1:]
	return pkt
}

// waitQueue is the blocking primitive backing a Socket's listen queue:
// snapshot/sleep/sleepTimeout/wakeUp, modeling the source kernel's
// semaphore + listen_queue.sleep pairing as a generation channel that is
// closed and replaced on every wakeUp. A waiter calls snapshot to capture
// the current generation before checking
// whether there's already work to do, then blocks on that same generation
// — so a wakeUp racing in between the check and the block is never missed,
// and no goroutine is spawned just to implement the timeout case.
type waitQueue struct {
	mu sync.Mutex
	ch chan struct{}
}

func newWaitQueue() *waitQueue {
	return &waitQueue{ch: make(chan struct{})}
}

// snapshot returns the current generation, closed by the next wakeUp.
func (w *waitQueue) snapshot() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

// sleep blocks until gen's generation ends.
func (w *waitQueue) sleep(gen <-chan struct{}) {
	<-gen
}

// sleepTimeout blocks until gen's generation ends or d elapses, returning
// false on timeout.
func (w *waitQueue) sleepTimeout(gen <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-gen:
		return true
	case <-timer.C:
		return false
	}
}

func (w *waitQueue) wakeUp() {
	w.mu.Lock()
	ch := w.ch
	w.ch = make(chan struct{})
	w.mu.Unlock()
	close(ch)
}
