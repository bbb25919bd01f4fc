package tcp

import (
	"fmt"
	network "net"
	"sync"

	"netkern/pkg/netcore"
	"netkern/pkg/netstack/ip"
)

// connKey identifies an established connection by its four-tuple, local
// half first since lookups on the RX path know the local port before they
// know anything else.
type connKey struct {
	localPort  uint16
	remoteIP   string
	remotePort uint16
}

// connEntry pairs the socket owning a connection with its sequence
// state.
type connEntry struct {
	sock *netcore.Socket
	conn *Connection
}

type connRegistry struct {
	mu      sync.Mutex
	entries map[connKey]*connEntry
}

func newConnRegistry() *connRegistry {
	return &connRegistry{entries: make(map[connKey]*connEntry)}
}

func (r *connRegistry) put(k connKey, e *connEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[k] = e
}

func (r *connRegistry) remove(k connKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, k)
}

func (r *connRegistry) get(k connKey) (*connEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[k]
	return e, ok
}

// registry is process-wide: every STREAM socket the kernel ever connects
// shares it, mirroring how a single kernel TCB table backs every socket.
var registry = newConnRegistry()

func keyFor(localPort uint16, remoteIP network.IP, remotePort uint16) connKey {
	return connKey{localPort: localPort, remoteIP: remoteIP.String(), remotePort: remotePort}
}

// Codec implements netcore.ProtocolCodec and netcore.Connector for
// ProtocolTCP. Connect/Disconnect are deliberately synchronous and do not
// wait for a peer SYN-ACK/FIN-ACK: full retransmission and flow control are
// out of scope, so a connection is considered established the moment its
// SYN is handed to the TX queue.
type Codec struct {
	LocalMAC network.HardwareAddr
	LocalIP  network.IP
}

// NewCodec returns a TCP codec bound to the stack's outbound address.
func NewCodec(localMAC network.HardwareAddr, localIP network.IP) *Codec {
	return &Codec{LocalMAC: localMAC, LocalIP: localIP}
}

func (c *Codec) connFor(sock *netcore.Socket) (*Connection, bool) {
	e, ok := registry.get(keyFor(sock.LocalPort(), sock.ServerAddr(), sock.ServerPort()))
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Connect implements netcore.Connector.
func (c *Codec) Connect(stack *netcore.Stack, sock *netcore.Socket, iface *netcore.Interface) error {
	conn := NewConnection(ConnectionID{
		SrcIP:   c.LocalIP,
		SrcPort: sock.LocalPort(),
		DstIP:   sock.ServerAddr(),
		DstPort: sock.ServerPort(),
	})
	conn.Open()

	seg := NewSegment(sock.LocalPort(), sock.ServerPort(), c.LocalIP, sock.ServerAddr(), FlagSYN, conn.ISS, 0, nil)
	frame := c.buildFrame(seg)
	iface.Send(netcore.NewPacket(iface.ID, frame))

	conn.Establish()
	registry.put(keyFor(sock.LocalPort(), sock.ServerAddr(), sock.ServerPort()), &connEntry{sock: sock, conn: conn})
	return nil
}

// Disconnect implements netcore.Connector.
func (c *Codec) Disconnect(stack *netcore.Stack, sock *netcore.Socket, iface *netcore.Interface) error {
	var seq, ack uint32
	if conn, ok := c.connFor(sock); ok {
		seq, ack = conn.NextSegment()
		conn.Close()
	}

	seg := NewSegment(sock.LocalPort(), sock.ServerPort(), c.LocalIP, sock.ServerAddr(), FlagFIN|FlagACK, seq, ack, nil)
	frame := c.buildFrame(seg)
	iface.Send(netcore.NewPacket(iface.ID, frame))

	registry.remove(keyFor(sock.LocalPort(), sock.ServerAddr(), sock.ServerPort()))
	return nil
}

// Prepare implements netcore.ProtocolCodec: desc is ignored, since an
// established STREAM socket already knows its four-tuple. It writes the
// Ethernet+IPv4+TCP headers for a PSH|ACK segment carrying the
// connection's current seq/ack and returns the offset at which the caller
// should copy their application payload.
func (c *Codec) Prepare(stack *netcore.Stack, sock *netcore.Socket, desc any, buffer []byte) (*netcore.Packet, int, error) {
	headerLen := 14 + ip.HeaderLength + HeaderLength
	if len(buffer) < headerLen {
		return nil, 0, fmt.Errorf("tcp prepare: buffer too small: need at least %d", headerLen)
	}

	iface := stack.Registry.SelectInterface(sock.ServerAddr())
	var seq, ack uint32
	if conn, ok := c.connFor(sock); ok {
		seq, ack = conn.NextSegment()
	}
	seg := NewSegment(sock.LocalPort(), sock.ServerPort(), c.LocalIP, sock.ServerAddr(), FlagPSH|FlagACK, seq, ack, nil)

	buffer[12], buffer[13] = 0x08, 0x00
	ipHdr := &ip.Header{
		Version: 4, IHL: 5, TTL: 64, Protocol: ip.ProtocolTCP,
		SrcIP: c.LocalIP, DstIP: sock.ServerAddr(),
	}
	copy(buffer[14:14+ip.HeaderLength], ipHdr.Serialize())
	copy(buffer[14+ip.HeaderLength:headerLen], seg.Header.Serialize())

	pkt := netcore.NewUserPacket(iface.ID, buffer)
	pkt.SetTag(0, 0)
	pkt.SetTag(1, 14)
	pkt.SetTag(2, 14+ip.HeaderLength)
	return pkt, headerLen, nil
}

// Finalize implements netcore.ProtocolCodec: fills in lengths and
// checksums now that the payload has been copied in, enqueues, and
// consumes the payload's worth of send sequence space.
func (c *Codec) Finalize(stack *netcore.Stack, sock *netcore.Socket, pkt *netcore.Packet) error {
	ipOff, tcpOff := pkt.Tag(1), pkt.Tag(2)
	if ipOff < 0 || tcpOff < 0 {
		return fmt.Errorf("tcp finalize: missing layer tags")
	}

	ipHdr, err := ip.ParseHeader(pkt.Payload[ipOff:])
	if err != nil {
		return fmt.Errorf("tcp finalize: %w", err)
	}
	payload := pkt.Payload[tcpOff+HeaderLength:]
	ipHdr.Length = uint16(ip.HeaderLength + HeaderLength + len(payload))
	ipHdr.Checksum = ipHdr.CalcChecksum()
	copy(pkt.Payload[ipOff:ipOff+ip.HeaderLength], ipHdr.Serialize())

	tcpHdr, err := ParseHeader(pkt.Payload[tcpOff:])
	if err != nil {
		return fmt.Errorf("tcp finalize: %w", err)
	}
	tcpHdr.Checksum = tcpHdr.CalcChecksum(ipHdr.SrcIP, ipHdr.DstIP, payload)
	copy(pkt.Payload[tcpOff:tcpOff+HeaderLength], tcpHdr.Serialize())

	iface := stack.Registry.InterfaceAt(pkt.InterfaceID)
	if iface == nil {
		return netcore.ErrNoInterface
	}
	// pkt still wraps the caller's own buffer from Prepare; the TX queue
	// only ever holds kernel-owned buffers, so hand it a clone and leave
	// the caller's memory alone.
	out := pkt
	if out.User {
		out = out.Clone()
	}
	iface.Send(out)

	if conn, ok := c.connFor(sock); ok {
		conn.Advance(len(payload))
	}
	return nil
}

func (c *Codec) buildFrame(seg *Segment) []byte {
	ipHdr := &ip.Header{
		Version: 4, IHL: 5, TTL: 64, Protocol: ip.ProtocolTCP,
		SrcIP: c.LocalIP, DstIP: seg.DstIP,
		Length: uint16(ip.HeaderLength + HeaderLength + len(seg.Payload)),
	}
	ipHdr.Checksum = ipHdr.CalcChecksum()
	seg.Header.Checksum = seg.Header.CalcChecksum(ipHdr.SrcIP, ipHdr.DstIP, seg.Payload)

	buf := make([]byte, 14+ip.HeaderLength+HeaderLength+len(seg.Payload))
	buf[12], buf[13] = 0x08, 0x00
	copy(buf[0:6], []byte{0, 0, 0, 0, 0, 0})
	copy(buf[6:12], c.LocalMAC)
	copy(buf[14:14+ip.HeaderLength], ipHdr.Serialize())
	copy(buf[14+ip.HeaderLength:], seg.Header.Serialize())
	return buf
}

// HandleInbound routes a decoded TCP segment to the socket registered for
// its four-tuple, if any, advancing that connection's receive cursor on
// the way. Segments for connections this kernel never established (no
// matching registry entry) are silently dropped, the Go analogue of the
// source kernel's "no listener" path for STREAM sockets.
func HandleInbound(stack *netcore.Stack, iface *netcore.Interface, pkt *netcore.Packet, ipHdr *ip.Header, transportOff int) {
	if transportOff+HeaderLength > len(pkt.Payload) {
		return
	}
	tcpHdr, err := ParseHeader(pkt.Payload[transportOff:])
	if err != nil {
		return
	}

	entry, ok := registry.get(keyFor(tcpHdr.DstPort, ipHdr.SrcIP, tcpHdr.SrcPort))
	if !ok {
		return
	}
	entry.conn.Observe(tcpHdr.SeqNum, len(tcpHdr.GetPayload(pkt.Payload[transportOff:])))
	pkt.SetTag(2, transportOff)
	entry.sock.Deliver(pkt.Clone())
}

var (
	_ netcore.ProtocolCodec = (*Codec)(nil)
	_ netcore.Connector     = (*Codec)(nil)
)
