package dns

import (
	network "net"

	"netkern/pkg/netcore"
	"netkern/pkg/netstack/ip"
	"netkern/pkg/netstack/udp"
)

// Codec implements netcore.ProtocolCodec for ProtocolDNS. Only outbound
// queries are supported: responding to a query arriving on a listening
// DGRAM socket would require this kernel to act as a name server, which is
// out of scope, so Prepare rejects any descriptor with Query == false.
type Codec struct {
	LocalMAC network.HardwareAddr
	LocalIP  network.IP
}

// NewCodec returns a DNS codec bound to the stack's outbound address.
func NewCodec(localMAC network.HardwareAddr, localIP network.IP) *Codec {
	return &Codec{LocalMAC: localMAC, LocalIP: localIP}
}

const ethHeaderLength = 14

// Prepare implements netcore.ProtocolCodec. desc must be a
// *netcore.DNSDescriptor with Query == true; the whole frame (Ethernet +
// IPv4 + UDP + DNS query) is built here, so the returned offset equals the
// frame length and FinalizePacket has nothing left to copy in.
func (c *Codec) Prepare(stack *netcore.Stack, sock *netcore.Socket, desc any, buffer []byte) (*netcore.Packet, int, error) {
	d, ok := desc.(*netcore.DNSDescriptor)
	if !ok {
		return nil, 0, netcore.ErrInvalidDescriptor
	}
	if !d.Query {
		return nil, 0, netcore.ErrUnimplemented
	}

	query, err := BuildQuery(d.Name, RecordType(d.RecordType))
	if err != nil {
		return nil, 0, err
	}
	msgBytes, err := NewParser().BuildMessage(query)
	if err != nil {
		return nil, 0, err
	}

	serverIP := network.IP(d.ServerIP)
	iface := stack.Registry.SelectInterface(serverIP)

	// A DGRAM socket always sends from its bound local port; the
	// descriptor's source port only matters for RAW sockets, which have
	// no binding of their own.
	srcPort := d.SourcePort
	if sock.Type == netcore.SocketDGRAM {
		srcPort = sock.LocalPort()
	}
	datagram := udp.NewDatagram(srcPort, d.ServerPort, c.LocalIP, serverIP, msgBytes)
	udpBytes := datagram.Serialize()

	ipHdr := &ip.Header{
		Version: 4, IHL: 5, TTL: 64, Protocol: ip.ProtocolUDP,
		SrcIP: c.LocalIP, DstIP: serverIP,
		Length: uint16(ip.HeaderLength + len(udpBytes)),
	}
	ipHdr.Checksum = ipHdr.CalcChecksum()

	total := ethHeaderLength + ip.HeaderLength + len(udpBytes)
	owned := true
	if len(buffer) < total {
		buffer = make([]byte, total)
		owned = false
	}
	buffer[12], buffer[13] = 0x08, 0x00
	copy(buffer[6:12], c.LocalMAC)
	copy(buffer[ethHeaderLength:ethHeaderLength+ip.HeaderLength], ipHdr.Serialize())
	copy(buffer[ethHeaderLength+ip.HeaderLength:total], udpBytes)

	var pkt *netcore.Packet
	if owned {
		pkt = netcore.NewUserPacket(iface.ID, buffer[:total])
	} else {
		pkt = netcore.NewPacket(iface.ID, buffer[:total])
	}
	pkt.SetTag(0, 0)
	pkt.SetTag(1, ethHeaderLength)
	pkt.SetTag(2, ethHeaderLength+ip.HeaderLength)
	return pkt, total, nil
}

// Finalize implements netcore.ProtocolCodec: the frame is already complete
// by the time Prepare returns, so Finalize only enqueues it. When Prepare
// built the frame directly into the caller's buffer, that buffer still
// belongs to the caller after this returns, so a kernel-owned clone is
// enqueued in its place rather than the caller's own memory.
func (c *Codec) Finalize(stack *netcore.Stack, sock *netcore.Socket, pkt *netcore.Packet) error {
	iface := stack.Registry.InterfaceAt(pkt.InterfaceID)
	if iface == nil {
		return netcore.ErrNoInterface
	}
	if pkt.User {
		pkt = pkt.Clone()
	}
	iface.Send(pkt)
	return nil
}

var _ netcore.ProtocolCodec = (*Codec)(nil)
