package driver

import "netkern/pkg/netcore"

// AttachMemLink wires a and b together as a point-to-point link: a frame
// sent out one side is received on the other, the in-memory equivalent of
// a veth pair. Used to exercise the RX/TX pipeline across two distinct
// interfaces without a real NIC.
func AttachMemLink(a, b *netcore.Interface) {
	a.SetHWSend(func(_ *netcore.Interface, pkt *netcore.Packet) error {
		b.Receive(pkt.Clone())
		return nil
	})
	b.SetHWSend(func(_ *netcore.Interface, pkt *netcore.Packet) error {
		a.Receive(pkt.Clone())
		return nil
	})
}
