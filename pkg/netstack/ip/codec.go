package ip

import (
	"fmt"
	network "net"

	"netkern/pkg/netcore"
)

// Codec implements netcore.ProtocolCodec for ProtocolICMP: it builds an
// Ethernet+IPv4+ICMP echo request into the caller's buffer and hands
// finalized frames to the owning interface's TX queue.
type Codec struct {
	LocalMAC network.HardwareAddr
	LocalIP  network.IP
}

// NewCodec builds an ICMP codec bound to the stack's outbound address.
func NewCodec(localMAC network.HardwareAddr, localIP network.IP) *Codec {
	return &Codec{LocalMAC: localMAC, LocalIP: localIP}
}

const ethernetHeaderLength = 14

// Prepare implements netcore.ProtocolCodec. desc must be a
// *netcore.ICMPDescriptor; it writes the Ethernet/IPv4/ICMP headers into
// buffer and returns the offset at which the caller should copy the echo
// payload before calling Finalize.
func (c *Codec) Prepare(stack *netcore.Stack, sock *netcore.Socket, desc any, buffer []byte) (*netcore.Packet, int, error) {
	d, ok := desc.(*netcore.ICMPDescriptor)
	if !ok {
		return nil, 0, netcore.ErrInvalidDescriptor
	}

	headerLen := ethernetHeaderLength + HeaderLength + 8
	total := headerLen + d.PayloadSize
	if len(buffer) < total {
		return nil, 0, fmt.Errorf("icmp prepare: buffer too small: need %d, have %d", total, len(buffer))
	}

	targetIP := network.IP(d.TargetIP)
	iface := stack.Registry.SelectInterface(targetIP)

	ipHdr := &Header{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: ProtocolICMP,
		SrcIP:    c.LocalIP,
		DstIP:    targetIP,
		Length:   uint16(HeaderLength + 8 + d.PayloadSize),
	}
	ipHdr.Checksum = ipHdr.CalcChecksum()

	icmpHdr := &ICMPHeader{Type: d.Type, Code: d.Code}

	buffer[12], buffer[13] = 0x08, 0x00 // EtherType IPv4
	copy(buffer[ethernetHeaderLength:ethernetHeaderLength+HeaderLength], ipHdr.Serialize())
	copy(buffer[ethernetHeaderLength+HeaderLength:headerLen], icmpHdr.Serialize())

	pkt := netcore.NewUserPacket(iface.ID, buffer[:total])
	pkt.SetTag(0, 0)
	pkt.SetTag(1, ethernetHeaderLength)
	pkt.SetTag(2, ethernetHeaderLength+HeaderLength)
	return pkt, headerLen, nil
}

// Finalize implements netcore.ProtocolCodec: recomputes the ICMP checksum
// over the now-complete payload, stamps the Ethernet header, and hands the
// frame to the interface's TX queue.
func (c *Codec) Finalize(stack *netcore.Stack, sock *netcore.Socket, pkt *netcore.Packet) error {
	ipOff := pkt.Tag(1)
	icmpOff := pkt.Tag(2)
	if ipOff < 0 || icmpOff < 0 || icmpOff+8 > len(pkt.Payload) {
		return fmt.Errorf("icmp finalize: missing layer tags")
	}

	ipHdr, err := ParseHeader(pkt.Payload[ipOff:])
	if err != nil {
		return fmt.Errorf("icmp finalize: %w", err)
	}

	icmpHdr, err := ParseICMPHeader(pkt.Payload[icmpOff:])
	if err != nil {
		return fmt.Errorf("icmp finalize: %w", err)
	}
	icmpHdr.Checksum = icmpHdr.CalcChecksum(pkt.Payload[icmpOff+8:])
	copy(pkt.Payload[icmpOff:icmpOff+8], icmpHdr.Serialize())

	ipHdr.Checksum = ipHdr.CalcChecksum()
	copy(pkt.Payload[ipOff:ipOff+HeaderLength], ipHdr.Serialize())

	iface := stack.Registry.InterfaceAt(pkt.InterfaceID)
	if iface == nil {
		return netcore.ErrNoInterface
	}
	copy(pkt.Payload[0:6], destMAC(iface, ipHdr.DstIP))
	copy(pkt.Payload[6:12], iface.MAC)

	// The TX queue only ever holds kernel-owned buffers; Prepare handed the
	// caller a user packet so it could fill the payload without a copy, but
	// by the time it's handed to the interface that buffer still belongs to
	// the caller, who is free to reuse it the moment FinalizePacket returns.
	// Send a kernel-owned clone instead of transferring the caller's buffer.
	if pkt.User {
		pkt = pkt.Clone()
	}
	iface.Send(pkt)
	return nil
}

// destMAC resolves the frame's destination MAC. The loopback interface
// addresses itself; a real interface would consult the ARP cache, which is
// not wired into this TX path, so the frame carries a zero MAC and relies
// on the driver or a downstream switch to flood it.
func destMAC(iface *netcore.Interface, dst network.IP) network.HardwareAddr {
	if iface.Loopback {
		return iface.MAC
	}
	return network.HardwareAddr{0, 0, 0, 0, 0, 0}
}

var _ netcore.ProtocolCodec = (*Codec)(nil)
