package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netkern/pkg/config"
	"netkern/pkg/netcore"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel: "warn",
		Interfaces: []config.InterfaceConfig{
			{Name: "lo", Loopback: true, Driver: "loopback", MAC: "00:00:00:00:00:01", IPv4: "127.0.0.1"},
			{Name: "veth0", Driver: "memlink", Peer: "veth1", MAC: "00:00:00:00:00:02", IPv4: "10.0.0.1"},
			{Name: "veth1", Driver: "memlink", Peer: "veth0", MAC: "00:00:00:00:00:03", IPv4: "10.0.0.2"},
		},
	}
}

func TestStartRegistersEveryConfiguredInterface(t *testing.T) {
	d, err := Start(testConfig())
	require.NoError(t, err)
	defer d.Stack.Shutdown()

	names := map[string]bool{}
	for _, iface := range d.Stack.Registry.All() {
		names[iface.Name] = true
		assert.True(t, iface.Enabled)
	}
	assert.True(t, names["lo"])
	assert.True(t, names["veth0"])
	assert.True(t, names["veth1"])
}

func TestStartPublishesSysfsForEveryInterface(t *testing.T) {
	d, err := Start(testConfig())
	require.NoError(t, err)
	defer d.Stack.Shutdown()

	v, ok := d.Sysfs.Get("/sys/net/veth0/driver")
	require.True(t, ok)
	assert.Equal(t, "memlink", v)
}

func TestStartOpensAnICMPSocketThatCanReachItself(t *testing.T) {
	d, err := Start(testConfig())
	require.NoError(t, err)
	defer d.Stack.Shutdown()

	fd, err := d.Stack.Open(1, netcore.DomainINET, netcore.SocketRAW, netcore.ProtocolICMP)
	require.NoError(t, err)
	require.NoError(t, d.Stack.Listen(1, fd, true))

	desc := &netcore.ICMPDescriptor{
		TargetIP:    []byte{127, 0, 0, 1},
		PayloadSize: 4,
		Type:        8,
	}
	buf := make([]byte, 64)
	packetFD, off, err := d.Stack.PreparePacket(1, fd, desc, buf)
	require.NoError(t, err)
	copy(buf[off:], []byte{1, 2, 3, 4})
	require.NoError(t, d.Stack.FinalizePacket(1, fd, packetFD))

	echoed := make([]byte, 64)
	_, err = d.Stack.WaitForPacket(1, fd, echoed, time.Second)
	assert.NoError(t, err, "a loopback ICMP echo must arrive back on the same RAW socket")
}

func TestLoopbackEchoIsBroadcastToEveryListeningRAWSocket(t *testing.T) {
	d, err := Start(testConfig())
	require.NoError(t, err)
	defer d.Stack.Shutdown()

	fdA, err := d.Stack.Open(1, netcore.DomainINET, netcore.SocketRAW, netcore.ProtocolICMP)
	require.NoError(t, err)
	require.NoError(t, d.Stack.Listen(1, fdA, true))

	fdB, err := d.Stack.Open(2, netcore.DomainINET, netcore.SocketRAW, netcore.ProtocolICMP)
	require.NoError(t, err)
	require.NoError(t, d.Stack.Listen(2, fdB, true))

	desc := &netcore.ICMPDescriptor{
		TargetIP:    []byte{127, 0, 0, 1},
		PayloadSize: 4,
		Type:        8,
	}
	buf := make([]byte, 64)
	packetFD, off, err := d.Stack.PreparePacket(1, fdA, desc, buf)
	require.NoError(t, err)
	copy(buf[off:], "abcd")
	require.NoError(t, d.Stack.FinalizePacket(1, fdA, packetFD))

	bufA := make([]byte, 64)
	_, err = d.Stack.WaitForPacket(1, fdA, bufA, time.Second)
	require.NoError(t, err)
	bufB := make([]byte, 64)
	_, err = d.Stack.WaitForPacket(2, fdB, bufB, time.Second)
	require.NoError(t, err, "every listening RAW/ICMP socket gets its own copy")
	assert.Contains(t, string(bufB), "abcd")
}

// buildUDPFrame assembles an Ethernet+IPv4+UDP frame the link codec can
// decode, for injecting inbound datagrams straight into an RX queue.
func buildUDPFrame(srcPort, dstPort uint16, payload []byte) []byte {
	frame := make([]byte, 14+20+8+len(payload))
	frame[12], frame[13] = 0x08, 0x00 // EtherType IPv4
	ip := frame[14:]
	ip[0] = 0x45 // version 4, IHL 5
	ip[2], ip[3] = byte((28+len(payload))>>8), byte(28+len(payload))
	ip[8] = 64 // TTL
	ip[9] = 17 // UDP
	copy(ip[12:16], []byte{127, 0, 0, 1})
	copy(ip[16:20], []byte{127, 0, 0, 1})
	udp := ip[20:]
	udp[0], udp[1] = byte(srcPort>>8), byte(srcPort)
	udp[2], udp[3] = byte(dstPort>>8), byte(dstPort)
	udp[4], udp[5] = byte((8+len(payload))>>8), byte(8+len(payload))
	copy(udp[8:], payload)
	return frame
}

func TestInboundDNSResponseDeliversOnlyToMatchingPort(t *testing.T) {
	d, err := Start(testConfig())
	require.NoError(t, err)
	defer d.Stack.Shutdown()

	fdA, err := d.Stack.Open(1, netcore.DomainINET, netcore.SocketDGRAM, netcore.ProtocolDNS)
	require.NoError(t, err)
	portA, err := d.Stack.ClientBind(1, fdA)
	require.NoError(t, err)
	require.NoError(t, d.Stack.Listen(1, fdA, true))

	fdB, err := d.Stack.Open(1, netcore.DomainINET, netcore.SocketDGRAM, netcore.ProtocolDNS)
	require.NoError(t, err)
	portB, err := d.Stack.ClientBind(1, fdB)
	require.NoError(t, err)
	require.NoError(t, d.Stack.Listen(1, fdB, true))
	require.NotEqual(t, portA, portB)

	var lo *netcore.Interface
	for _, iface := range d.Stack.Registry.All() {
		if iface.Loopback {
			lo = iface
		}
	}
	require.NotNil(t, lo)

	frame := buildUDPFrame(53, portB, []byte{0xDE, 0xAD})
	lo.Receive(netcore.NewPacket(lo.ID, frame))

	buf := make([]byte, 64)
	_, err = d.Stack.WaitForPacket(1, fdB, buf, time.Second)
	require.NoError(t, err, "the socket bound to the datagram's destination port must receive it")

	_, err = d.Stack.WaitForPacket(1, fdA, buf, 50*time.Millisecond)
	assert.ErrorIs(t, err, netcore.ErrTimeout, "a socket bound to a different port must not receive it")
}
