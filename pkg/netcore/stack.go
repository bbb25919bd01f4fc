package netcore

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Stack is the top-level handle onto the network subsystem: the interface
// registry, the socket table, the codec registrations, and the local port
// allocator.
type Stack struct {
	Registry *InterfaceRegistry
	sockets  SocketTable
	spawner  TaskSpawner
	log      *logrus.Logger

	codecs map[Protocol]ProtocolCodec

	nextLocalPort uint32
}

// NewStack wires a Stack around an already-populated registry and the
// external scheduler/driver collaborators. Codec registration happens via
// RegisterCodec after construction, keeping netcore free of any import on
// the concrete codec packages.
func NewStack(registry *InterfaceRegistry, sockets SocketTable, spawner TaskSpawner, log *logrus.Logger) *Stack {
	if log == nil {
		log = logrus.New()
	}
	return &Stack{
		Registry:      registry,
		sockets:       sockets,
		spawner:       spawner,
		log:           log,
		codecs:        make(map[Protocol]ProtocolCodec),
		nextLocalPort: 1234,
	}
}

// RegisterCodec installs the ProtocolCodec responsible for proto.
func (s *Stack) RegisterCodec(proto Protocol, codec ProtocolCodec) {
	s.codecs[proto] = codec
}

func (s *Stack) codecFor(proto Protocol) (ProtocolCodec, bool) {
	c, ok := s.codecs[proto]
	return c, ok
}

// allocatePort hands out local ports: a single
// monotonically incrementing counter starting at 1234, shared across all
// sockets, advanced by atomic post-increment so concurrent ClientBind/
// Connect calls never collide.
func (s *Stack) allocatePort() uint16 {
	return uint16(atomic.AddUint32(&s.nextLocalPort, 1) - 1)
}

// Finalize spawns the RX/TX worker goroutines for every enabled interface.
// Call once, after all interfaces have been registered and
// enabled and their drivers attached.
func (s *Stack) Finalize() {
	for _, iface := range s.Registry.All() {
		if !iface.Enabled {
			continue
		}
		iface.log = s.log
		s.startWorkers(iface)
		s.log.WithFields(logrus.Fields{
			"interface": iface.Name,
			"mac":       iface.MAC.String(),
			"ip":        iface.IPv4.String(),
		}).Info("netcore: interface up")
	}
}
