// Package driver provides HWSend implementations that attach to a
// netcore.Interface without requiring real hardware: a loopback driver and
// an in-memory pair that mimics a two-host link for local testing.
package driver

import "netkern/pkg/netcore"

// AttachLoopback wires iface's transmit path directly back onto its own RX
// queue. A frame sent out is available to the link codec on the very next
// RX pop, the same round trip a real loopback device performs in hardware.
//
// The RX side always gets a clone: the TX worker nils out a kernel-owned
// packet's Payload right after hwSend returns, which would race the RX
// worker reading the very same *Packet if it weren't given its own copy.
func AttachLoopback(iface *netcore.Interface) {
	iface.SetHWSend(func(iface *netcore.Interface, pkt *netcore.Packet) error {
		iface.Receive(pkt.Clone())
		return nil
	})
}
