package ethernet

import (
	"encoding/binary"

	"netkern/pkg/netcore"
	"netkern/pkg/netstack"
	"netkern/pkg/netstack/ip"
	"netkern/pkg/netstack/tcp"
)

// Codec implements netcore.LinkCodec: it decodes an inbound Ethernet frame
// arriving on an interface's RX queue and routes the IP payload to the
// dispatcher or, for TCP, directly to the owning connection.
type Codec struct {
	ARP *ARPTable
}

// NewCodec returns a link codec with a fresh ARP cache.
func NewCodec() *Codec {
	return &Codec{ARP: NewARPTable()}
}

// Decode implements netcore.LinkCodec.
func (c *Codec) Decode(stack *netcore.Stack, iface *netcore.Interface, pkt *netcore.Packet) error {
	frame, err := ParseFrame(pkt.Payload)
	if err != nil {
		return err
	}
	pkt.SetTag(0, 0)

	switch frame.EtherType {
	case netstack.EtherTypeARP:
		return c.handleARP(iface, frame)
	case netstack.EtherTypeIPv4:
		return c.handleIPv4(stack, iface, pkt)
	default:
		return nil
	}
}

func (c *Codec) handleARP(iface *netcore.Interface, frame *Frame) error {
	arp, err := ParseARPPacket(frame.Payload)
	if err != nil {
		return err
	}
	c.ARP.Set(arp.SenderIP, arp.SenderMAC)

	if arp.Operation != ARPOperationRequest || !arp.TargetIP.Equal(iface.IPv4) {
		return nil
	}

	reply := NewARPReply(iface.MAC, iface.IPv4, arp.SenderMAC, arp.SenderIP)
	replyFrame := NewFrame(arp.SenderMAC, iface.MAC, netstack.EtherTypeARP, reply.Serialize())
	iface.Send(netcore.NewPacket(iface.ID, replyFrame.Serialize()))
	return nil
}

func (c *Codec) handleIPv4(stack *netcore.Stack, iface *netcore.Interface, pkt *netcore.Packet) error {
	ipOff := HeaderLength
	ipHdr, err := ip.ParseHeader(pkt.Payload[ipOff:])
	if err != nil {
		return err
	}
	pkt.SetTag(1, ipOff)
	transportOff := ipOff + int(ipHdr.IHL)*4

	switch ipHdr.Protocol {
	case ip.ProtocolICMP:
		pkt.SetTag(2, transportOff)
		stack.PropagatePacket(pkt, netcore.ProtocolICMP)
	case ip.ProtocolUDP:
		pkt.SetTag(2, transportOff)
		if transportOff+4 > len(pkt.Payload) {
			return nil
		}
		srcPort := binary.BigEndian.Uint16(pkt.Payload[transportOff : transportOff+2])
		dstPort := binary.BigEndian.Uint16(pkt.Payload[transportOff+2 : transportOff+4])
		// Queries go to port 53, responses come from it; either way the
		// datagram is DNS traffic as far as dispatch is concerned.
		if srcPort == 53 || dstPort == 53 {
			stack.PropagatePacket(pkt, netcore.ProtocolDNS)
		}
	case ip.ProtocolTCP:
		tcp.HandleInbound(stack, iface, pkt, ipHdr, transportOff)
	}
	return nil
}

var _ netcore.LinkCodec = (*Codec)(nil)
