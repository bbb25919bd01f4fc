package ethernet

import (
	network "net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netkern/pkg/netcore"
	"netkern/pkg/netstack"
	ipv4 "netkern/pkg/netstack/ip"
	"netkern/pkg/process"
)

func newTestStack(t *testing.T) (*netcore.Stack, *netcore.Interface) {
	t.Helper()
	procs := process.NewProcessManager(process.NewPriorityScheduler())
	registry := netcore.NewInterfaceRegistry()
	iface := registry.Register("eth0")
	iface.Enabled = true
	iface.MAC = network.HardwareAddr{0, 0, 0, 0, 0, 1}
	iface.IPv4 = network.IPv4(10, 0, 0, 1)

	stack := netcore.NewStack(registry, procs, procs, nil)
	return stack, iface
}

func TestDecodeARPRequestForUsGeneratesReply(t *testing.T) {
	stack, iface := newTestStack(t)
	var sent *netcore.Packet
	iface.SetHWSend(func(_ *netcore.Interface, pkt *netcore.Packet) error {
		// The TX worker drops pkt.Payload once hwSend returns, so keep a copy.
		sent = pkt.Clone()
		return nil
	})

	stack.Finalize()

	codec := NewCodec()
	senderMAC := network.HardwareAddr{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	senderIP := network.IPv4(10, 0, 0, 2)
	req := NewARPRequest(senderMAC, senderIP, iface.IPv4)
	frame := NewFrame(BroadcastMAC(), senderMAC, netstack.EtherTypeARP, req.Serialize())

	pkt := netcore.NewPacket(iface.ID, frame.Serialize())
	require.NoError(t, codec.Decode(stack, iface, pkt))

	require.Eventually(t, func() bool { return sent != nil }, time.Second, time.Millisecond)
	replyFrame, err := ParseFrame(sent.Payload)
	require.NoError(t, err)
	assert.Equal(t, netstack.EtherTypeARP, replyFrame.EtherType)

	reply, err := ParseARPPacket(replyFrame.Payload)
	require.NoError(t, err)
	assert.Equal(t, ARPOperationReply, reply.Operation)
	assert.Equal(t, iface.IPv4.String(), reply.SenderIP.String())
	assert.Equal(t, senderMAC, reply.TargetMAC)

	mac, err := codec.ARP.Lookup(senderIP)
	require.NoError(t, err)
	assert.Equal(t, senderMAC, mac)
}

func TestDecodeARPRequestForAnotherHostUpdatesTableOnly(t *testing.T) {
	stack, iface := newTestStack(t)
	sent := false
	iface.SetHWSend(func(_ *netcore.Interface, pkt *netcore.Packet) error {
		sent = true
		return nil
	})

	codec := NewCodec()
	senderMAC := network.HardwareAddr{0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB}
	senderIP := network.IPv4(10, 0, 0, 3)
	req := NewARPRequest(senderMAC, senderIP, network.IPv4(10, 0, 0, 99))
	frame := NewFrame(BroadcastMAC(), senderMAC, netstack.EtherTypeARP, req.Serialize())

	pkt := netcore.NewPacket(iface.ID, frame.Serialize())
	require.NoError(t, codec.Decode(stack, iface, pkt))

	assert.False(t, sent, "a request for a different target must not provoke a reply")
	mac, err := codec.ARP.Lookup(senderIP)
	require.NoError(t, err)
	assert.Equal(t, senderMAC, mac, "the ARP table updates from any observed packet, not only ones addressed to us")
}

func TestDecodeIPv4ICMPDispatchesToRegisteredRAWSocket(t *testing.T) {
	stack, iface := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketRAW, netcore.ProtocolICMP)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))

	codec := NewCodec()
	ipHdr := &ipv4.Header{Version: 4, IHL: 5, TTL: 64, Protocol: ipv4.ProtocolICMP, SrcIP: network.IPv4(10, 0, 0, 2), DstIP: iface.IPv4}
	ipHdr.Checksum = ipHdr.CalcChecksum()
	ipBytes := ipHdr.Serialize()
	frame := NewFrame(iface.MAC, network.HardwareAddr{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, netstack.EtherTypeIPv4, ipBytes)

	pkt := netcore.NewPacket(iface.ID, frame.Serialize())
	require.NoError(t, codec.Decode(stack, iface, pkt))

	buf := make([]byte, 64)
	_, err = stack.WaitForPacket(1, fd, buf, 0)
	assert.NoError(t, err, "an inbound ICMP frame must be propagated to a listening RAW/ICMP socket")
}

func TestDecodeIPv4UDPPort53DispatchesToDNSSockets(t *testing.T) {
	stack, iface := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketRAW, netcore.ProtocolDNS)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))

	codec := NewCodec()
	ipHdr := &ipv4.Header{Version: 4, IHL: 5, TTL: 64, Protocol: ipv4.ProtocolUDP, SrcIP: network.IPv4(10, 0, 0, 2), DstIP: iface.IPv4}
	ipHdr.Checksum = ipHdr.CalcChecksum()
	udpPayload := make([]byte, 8)
	udpPayload[0], udpPayload[1] = 0x13, 0x37 // arbitrary source port
	udpPayload[2], udpPayload[3] = 0, 53      // port 53 on either side is what gates dispatch in Decode
	payload := append(ipHdr.Serialize(), udpPayload...)
	frame := NewFrame(iface.MAC, network.HardwareAddr{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, netstack.EtherTypeIPv4, payload)

	pkt := netcore.NewPacket(iface.ID, frame.Serialize())
	require.NoError(t, codec.Decode(stack, iface, pkt))

	buf := make([]byte, 64)
	_, err = stack.WaitForPacket(1, fd, buf, 0)
	assert.NoError(t, err, "an inbound UDP/53 frame must be propagated to a listening RAW/DNS socket")
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	stack, iface := newTestStack(t)
	codec := NewCodec()
	pkt := netcore.NewPacket(iface.ID, []byte{1, 2, 3})
	assert.Error(t, codec.Decode(stack, iface, pkt))
}
