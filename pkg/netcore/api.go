package netcore

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Open validates domain/type/protocol and their cross-constraints, then
// registers a new socket under pid.
func (s *Stack) Open(pid int, domain Domain, typ SocketType, proto Protocol) (int, error) {
	if domain != DomainINET {
		return 0, ErrInvalidDomain
	}
	switch typ {
	case SocketRAW, SocketDGRAM, SocketSTREAM:
	default:
		return 0, ErrInvalidType
	}
	switch proto {
	case ProtocolICMP, ProtocolDNS, ProtocolTCP:
	default:
		return 0, ErrInvalidProtocol
	}
	if typ == SocketDGRAM && proto != ProtocolDNS {
		return 0, ErrInvalidTypeProtocol
	}
	if typ == SocketSTREAM && proto != ProtocolTCP {
		return 0, ErrInvalidTypeProtocol
	}

	sock := newSocket(pid, 0, domain, typ, proto)
	fd := s.sockets.RegisterNewSocket(pid, sock)
	sock.FD = fd
	s.log.WithFields(logrus.Fields{"pid": pid, "fd": fd, "protocol": proto}).Debug("netcore: socket opened")
	return fd, nil
}

// Close releases fd's socket. Idempotent on an unknown fd.
func (s *Stack) Close(pid, fd int) {
	s.sockets.ReleaseSocket(pid, fd)
	s.log.WithFields(logrus.Fields{"pid": pid, "fd": fd}).Debug("netcore: socket closed")
}

// Listen sets fd's listen flag. No validation beyond fd existence.
func (s *Stack) Listen(pid, fd int, on bool) error {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return ErrInvalidFD
	}
	sock.setListen(on)
	s.log.WithFields(logrus.Fields{"pid": pid, "fd": fd, "listen": on}).Debug("netcore: socket listen flag changed")
	return nil
}

// ClientBind requires a DGRAM socket and allocates it a local port.
func (s *Stack) ClientBind(pid, fd int) (uint16, error) {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return 0, ErrInvalidFD
	}
	if sock.Type != SocketDGRAM {
		return 0, ErrInvalidType
	}
	port := s.allocatePort()
	sock.setLocalPort(port)
	return port, nil
}

// Connect requires a STREAM/TCP socket. It allocates a local port,
// records the server endpoint, and delegates the handshake to the TCP
// codec's Connector capability.
func (s *Stack) Connect(pid, fd int, serverIP net.IP, serverPort uint16) (uint16, error) {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return 0, ErrInvalidFD
	}
	if sock.Type != SocketSTREAM {
		return 0, ErrInvalidType
	}
	if sock.Protocol != ProtocolTCP {
		return 0, ErrInvalidTypeProtocol
	}

	codec, ok := s.codecFor(ProtocolTCP)
	if !ok {
		return 0, ErrUnimplemented
	}
	connector, ok := codec.(Connector)
	if !ok {
		return 0, ErrUnimplemented
	}

	if s.Registry.NumberOfInterfaces() == 0 {
		return 0, ErrNoInterface
	}
	iface := s.Registry.SelectInterface(serverIP)

	port := s.allocatePort()
	sock.setLocalPort(port)
	sock.setServer(serverIP, serverPort)

	if err := connector.Connect(s, sock, iface); err != nil {
		return 0, fmt.Errorf("tcp connect: %w", err)
	}
	sock.setConnected(true)
	s.log.WithFields(logrus.Fields{"pid": pid, "fd": fd, "local_port": port}).Debug("netcore: socket connected")
	return port, nil
}

// Disconnect requires a STREAM socket that is currently connected, and
// delegates the teardown to the TCP codec.
func (s *Stack) Disconnect(pid, fd int) error {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return ErrInvalidFD
	}
	if sock.Type != SocketSTREAM {
		return ErrInvalidType
	}
	if !sock.Connected() {
		return ErrNotConnected
	}

	codec, ok := s.codecFor(ProtocolTCP)
	if !ok {
		return ErrUnimplemented
	}
	connector, ok := codec.(Connector)
	if !ok {
		return ErrUnimplemented
	}

	iface := s.Registry.SelectInterface(sock.ServerAddr())
	if err := connector.Disconnect(s, sock, iface); err != nil {
		return fmt.Errorf("tcp disconnect: %w", err)
	}
	sock.setConnected(false)
	s.log.WithFields(logrus.Fields{"pid": pid, "fd": fd}).Debug("netcore: socket disconnected")
	return nil
}

// PreparePacket checks preconditions, then dispatches to the socket's
// protocol codec to build the packet and register it for a later
// FinalizePacket.
func (s *Stack) PreparePacket(pid, fd int, desc any, buffer []byte) (int, int, error) {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return 0, 0, ErrInvalidFD
	}
	if s.Registry.NumberOfInterfaces() == 0 {
		return 0, 0, ErrNoInterface
	}
	if sock.Type == SocketSTREAM && !sock.Connected() {
		return 0, 0, ErrNotConnected
	}

	codec, ok := s.codecFor(sock.Protocol)
	if !ok {
		return 0, 0, ErrUnimplemented
	}

	pkt, payloadIndex, err := codec.Prepare(s, sock, desc, buffer)
	if err != nil {
		return 0, 0, err
	}
	packetFD := sock.RegisterPacket(pkt)
	return packetFD, payloadIndex, nil
}

// FinalizePacket checks preconditions, then runs the codec's Finalize,
// which enqueues the packet onto the interface TX queue. On codec failure
// the pending-packet entry is deliberately left in place, allowing the
// caller to retry FinalizePacket with the same packetFD.
func (s *Stack) FinalizePacket(pid, fd, packetFD int) error {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return ErrInvalidFD
	}
	if !sock.HasPacket(packetFD) {
		return ErrInvalidPacketFD
	}
	if sock.Type == SocketSTREAM && !sock.Connected() {
		return ErrNotConnected
	}

	codec, ok := s.codecFor(sock.Protocol)
	if !ok {
		return ErrUnimplemented
	}
	pkt, _ := sock.GetPacket(packetFD)

	if err := codec.Finalize(s, sock, pkt); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	sock.ErasePacket(packetFD)
	return nil
}

// WaitForPacket blocks until an inbound packet lands in fd's listen
// queue, copies its payload into buf, and returns its index. timeout < 0 blocks
// indefinitely; timeout == 0 returns ErrTimeout immediately if nothing is
// queued; timeout > 0 sleeps at most that long.
func (s *Stack) WaitForPacket(pid, fd int, buf []byte, timeout time.Duration) (uint64, error) {
	sock, ok := s.sockets.GetSocket(pid, fd)
	if !ok {
		return 0, ErrInvalidFD
	}
	if !sock.Listen() {
		return 0, ErrNotListen
	}

	// Snapshot the generation before checking for a buffered packet: a
	// Deliver landing between the check and the sleep below still closes
	// this same generation, so the sleep returns immediately instead of
	// waiting for a later wakeUp that may never come.
	gen := sock.listenQueue.snapshot()
	pkt := sock.popListenPacket()
	if pkt == nil {
		switch {
		case timeout == 0:
			return 0, ErrTimeout
		case timeout < 0:
			// Unbounded wait: another waiter on the same socket may win
			// the race for the packet that woke us, so keep sleeping
			// until a pop succeeds.
			for pkt == nil {
				sock.listenQueue.sleep(gen)
				gen = sock.listenQueue.snapshot()
				pkt = sock.popListenPacket()
			}
		default:
			if !sock.listenQueue.sleepTimeout(gen, timeout) {
				return 0, ErrTimeout
			}
			pkt = sock.popListenPacket()
			if pkt == nil {
				return 0, ErrTimeout
			}
		}
	}

	copy(buf, pkt.Payload)
	index := pkt.Index
	pkt.Payload = nil
	return index, nil
}
