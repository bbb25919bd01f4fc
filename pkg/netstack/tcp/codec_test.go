package tcp

import (
	network "net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netkern/pkg/netcore"
	"netkern/pkg/netstack/ip"
	"netkern/pkg/process"
)

func newTestStack(t *testing.T) *netcore.Stack {
	t.Helper()
	procs := process.NewProcessManager(process.NewPriorityScheduler())
	registry := netcore.NewInterfaceRegistry()
	iface := registry.Register("lo")
	iface.Enabled = true
	iface.Loopback = true
	iface.MAC = network.HardwareAddr{0, 0, 0, 0, 0, 1}
	iface.IPv4 = network.IPv4(127, 0, 0, 1)
	iface.SetHWSend(func(_ *netcore.Interface, pkt *netcore.Packet) error { return nil })

	stack := netcore.NewStack(registry, procs, procs, nil)
	stack.RegisterCodec(netcore.ProtocolTCP, NewCodec(iface.MAC, iface.IPv4))
	return stack
}

func TestCodecConnectRegistersConnection(t *testing.T) {
	stack := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketSTREAM, netcore.ProtocolTCP)
	require.NoError(t, err)

	localPort, err := stack.Connect(1, fd, network.IPv4(127, 0, 0, 1), 80)
	require.NoError(t, err)
	assert.NotZero(t, localPort)

	entry, ok := registry.get(keyFor(localPort, network.IPv4(127, 0, 0, 1), 80))
	require.True(t, ok, "Connect must register the four-tuple in the process-wide connection registry")
	assert.Equal(t, StateEstablished, entry.conn.State())
	seq, _ := entry.conn.NextSegment()
	assert.Equal(t, entry.conn.ISS+1, seq, "the SYN must consume one sequence number")

	require.NoError(t, stack.Disconnect(1, fd))
	_, ok = registry.get(keyFor(localPort, network.IPv4(127, 0, 0, 1), 80))
	assert.False(t, ok, "Disconnect must remove the registry entry")
}

func TestCodecPreparePacketRequiresConnection(t *testing.T) {
	stack := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketSTREAM, netcore.ProtocolTCP)
	require.NoError(t, err)

	_, _, err = stack.PreparePacket(1, fd, nil, make([]byte, 128))
	assert.ErrorIs(t, err, netcore.ErrNotConnected)
}

func TestCodecPrepareFinalizeStampsChecksums(t *testing.T) {
	stack := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketSTREAM, netcore.ProtocolTCP)
	require.NoError(t, err)
	localPort, err := stack.Connect(1, fd, network.IPv4(127, 0, 0, 1), 9000)
	require.NoError(t, err)

	entry, ok := registry.get(keyFor(localPort, network.IPv4(127, 0, 0, 1), 9000))
	require.True(t, ok)

	payload := []byte("hello")
	buf := make([]byte, 14+ip.HeaderLength+HeaderLength+len(payload))
	packetFD, off, err := stack.PreparePacket(1, fd, nil, buf)
	require.NoError(t, err)
	copy(buf[off:], payload)

	require.NoError(t, stack.FinalizePacket(1, fd, packetFD))

	ipHdr, err := ip.ParseHeader(buf[14:])
	require.NoError(t, err)
	assert.Equal(t, ip.ProtocolTCP, ipHdr.Protocol)
	assert.NotZero(t, ipHdr.Checksum)

	tcpHdr, err := ParseHeader(buf[14+ip.HeaderLength:])
	require.NoError(t, err)
	assert.True(t, tcpHdr.Flags&FlagPSH != 0)
	assert.NotZero(t, tcpHdr.Checksum)
	assert.Equal(t, entry.conn.ISS+1, tcpHdr.SeqNum, "the first data segment carries the post-SYN sequence number")

	seq, _ := entry.conn.NextSegment()
	assert.Equal(t, entry.conn.ISS+1+uint32(len(payload)), seq, "Finalize must consume the payload's sequence space")
}

func TestHandleInboundDeliversToRegisteredSocket(t *testing.T) {
	stack := newTestStack(t)
	fd, err := stack.Open(1, netcore.DomainINET, netcore.SocketSTREAM, netcore.ProtocolTCP)
	require.NoError(t, err)
	localPort, err := stack.Connect(1, fd, network.IPv4(10, 0, 0, 2), 4321)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))

	seg := NewSegment(4321, localPort, network.IPv4(10, 0, 0, 2), network.IPv4(127, 0, 0, 1), FlagACK|FlagPSH, 1, 1, []byte("hi"))
	ipHdr := &ip.Header{SrcIP: network.IPv4(10, 0, 0, 2), DstIP: network.IPv4(127, 0, 0, 1)}
	frame := make([]byte, HeaderLength+len("hi"))
	copy(frame, seg.Header.Serialize())
	copy(frame[HeaderLength:], "hi")
	pkt := netcore.NewPacket(0, frame)

	HandleInbound(stack, nil, pkt, ipHdr, 0)

	idx, err := stack.WaitForPacket(1, fd, make([]byte, 64), 0)
	require.NoError(t, err, "HandleInbound must deliver the segment to the socket registered for its four-tuple")
	assert.NotZero(t, idx)

	entry, ok := registry.get(keyFor(localPort, network.IPv4(10, 0, 0, 2), 4321))
	require.True(t, ok)
	_, ack := entry.conn.NextSegment()
	assert.Equal(t, uint32(1+len("hi")), ack, "an inbound segment must advance the receive cursor")
}
