package netcore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropagatePacketDeliversToMatchingRAWSockets(t *testing.T) {
	stack, iface := newTestStack()

	fd, err := stack.Open(1, DomainINET, SocketRAW, ProtocolICMP)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))
	sock, _ := stack.sockets.GetSocket(1, fd)

	pkt := NewPacket(iface.ID, []byte{0xAA, 0xBB})
	stack.PropagatePacket(pkt, ProtocolICMP)

	delivered := sock.popListenPacket()
	require.NotNil(t, delivered)
	assert.Equal(t, pkt.Payload, delivered.Payload)
	assert.NotSame(t, pkt, delivered, "PropagatePacket must deliver a clone, not the original")
}

func TestPropagatePacketSkipsNonListeningSockets(t *testing.T) {
	stack, iface := newTestStack()

	fd, err := stack.Open(1, DomainINET, SocketRAW, ProtocolICMP)
	require.NoError(t, err)
	sock, _ := stack.sockets.GetSocket(1, fd)

	stack.PropagatePacket(NewPacket(iface.ID, []byte{1}), ProtocolICMP)
	assert.Nil(t, sock.popListenPacket())
}

func TestPropagatePacketSkipsStreamSockets(t *testing.T) {
	stack, iface := newTestStack()
	stack.RegisterCodec(ProtocolTCP, &fakeConnector{})

	fd, err := stack.Open(1, DomainINET, SocketSTREAM, ProtocolTCP)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))
	sock, _ := stack.sockets.GetSocket(1, fd)

	stack.PropagatePacket(NewPacket(iface.ID, []byte{1, 2, 3, 4}), ProtocolTCP)
	assert.Nil(t, sock.popListenPacket(), "STREAM sockets never receive broadcast deliveries")
}

func TestPropagatePacketDGRAMMatchesOnPort(t *testing.T) {
	stack, iface := newTestStack()

	fd, err := stack.Open(1, DomainINET, SocketDGRAM, ProtocolDNS)
	require.NoError(t, err)
	port, err := stack.ClientBind(1, fd)
	require.NoError(t, err)
	require.NoError(t, stack.Listen(1, fd, true))
	sock, _ := stack.sockets.GetSocket(1, fd)

	payload := make([]byte, 8)
	binary.BigEndian.PutUint16(payload[2:4], port)
	pkt := NewPacket(iface.ID, payload)
	pkt.SetTag(2, 0)

	stack.PropagatePacket(pkt, ProtocolDNS)
	assert.NotNil(t, sock.popListenPacket())

	other := make([]byte, 8)
	binary.BigEndian.PutUint16(other[2:4], port+1)
	otherPkt := NewPacket(iface.ID, other)
	otherPkt.SetTag(2, 0)
	stack.PropagatePacket(otherPkt, ProtocolDNS)
	assert.Nil(t, sock.popListenPacket(), "a DGRAM socket must not receive a packet addressed to a different port")
}
