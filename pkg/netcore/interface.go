package netcore

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// PCICoordinates is opaque to the core; it is only carried for sysfs
// publication and driver matching.
type PCICoordinates struct {
	Bus      int
	Device   int
	Function int
}

// LinkCodec decodes inbound frames for an interface. Ethernet is the only
// implementation in this repository, but the core never imports it — the
// dependency runs the other way, avoiding an import cycle between the
// codec packages (which need Packet/Interface/Stack) and netcore.
type LinkCodec interface {
	Decode(stack *Stack, iface *Interface, pkt *Packet) error
}

// HWSend transmits a finalized frame through the driver. Supplied by
// pkg/driver at interface registration time.
type HWSend func(iface *Interface, pkt *Packet) error

// Interface is a network interface descriptor: one physical NIC, or the
// loopback pseudo-device. Interfaces are created during Init and never
// removed; the loopback interface is always appended last.
type Interface struct {
	// ID is the interface's position in the registry (assignment order).
	ID int
	// Enabled gates whether SelectInterface and the worker goroutines
	// consider this interface live.
	Enabled bool
	// Name is the human-readable interface name (e.g. "eth0", "lo").
	Name string
	// DriverTag identifies which driver backs this interface (e.g.
	// "rtl8139", "loopback").
	DriverTag string
	// DriverData is an opaque handle owned by the driver; the core
	// never dereferences it.
	DriverData any
	// Loopback marks the interface the registry returns for 127.0.0.1.
	Loopback bool

	MAC     net.HardwareAddr
	IPv4    net.IP
	Gateway net.IP
	PCI     PCICoordinates

	LinkCodec LinkCodec
	hwSend    HWSend

	// RXQueue and TXQueue are the bounded ring buffers each interface
	// drains through its own RX/TX worker; each carries its own counting
	// semaphore internally, mirroring the source kernel's rx_sem/tx_sem.
	RXQueue *packetQueue
	TXQueue *packetQueue

	txLock sync.Mutex

	RXTaskID int
	TXTaskID int

	cancelWorkers context.CancelFunc

	// log is set by the owning Stack during Finalize so the queue paths
	// can report overflow drops without the queues themselves holding a
	// logger.
	log *logrus.Logger
}

func newInterface(id int, name string) *Interface {
	return &Interface{
		ID:      id,
		Name:    name,
		RXQueue: newPacketQueue(),
		TXQueue: newPacketQueue(),
	}
}

// SetHWSend attaches the driver's transmit function. Called once by the
// driver at interface registration time.
func (iface *Interface) SetHWSend(fn HWSend) {
	iface.hwSend = fn
}

// Send enqueues pkt onto the interface's TX queue under the TX mutex,
// preserving enqueue order for the single TX worker to drain: outbound
// frames enqueued through one interface's TX mutex are transmitted in
// enqueue order.
func (iface *Interface) Send(pkt *Packet) {
	iface.txLock.Lock()
	defer iface.txLock.Unlock()
	pkt.InterfaceID = iface.ID
	if !iface.TXQueue.push(pkt) && iface.log != nil {
		iface.log.WithField("interface", iface.Name).Debug("netcore: tx queue overflow, oldest frame dropped")
	}
}

// QueueDepths reports the current RX/TX queue lengths, for sysfs-style
// introspection and tests asserting the queue-capacity invariant.
func (iface *Interface) QueueDepths() (rx, tx int) {
	return iface.RXQueue.len(), iface.TXQueue.len()
}

// Receive enqueues pkt onto the interface's RX queue. Drivers call this
// from their read loop (or, for loopback, directly from their send path)
// to hand an inbound frame to the RX worker.
func (iface *Interface) Receive(pkt *Packet) bool {
	pkt.InterfaceID = iface.ID
	ok := iface.RXQueue.push(pkt)
	if !ok && iface.log != nil {
		iface.log.WithField("interface", iface.Name).Debug("netcore: rx queue overflow, oldest frame dropped")
	}
	return ok
}

// IPToUint32 converts an IPv4 address to a 32-bit host-order integer.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Uint32ToIP converts a 32-bit host-order integer to an IPv4 address.
func Uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
