package netcore

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// PropagatePacket is called by a protocol codec once a packet has been
// decoded as proto, and copies the packet into every listening socket
// whose type/protocol/port match. The original pkt is left untouched —
// it is still owned by the RX worker's decode chain.
func (s *Stack) PropagatePacket(pkt *Packet, proto Protocol) {
	delivered := 0
	for _, pid := range s.sockets.Pids() {
		if !s.sockets.State(pid).liveForDispatch() {
			continue
		}
		for _, sock := range s.sockets.Sockets(pid) {
			if !matches(sock, pkt, proto) {
				continue
			}
			sock.Deliver(pkt.Clone())
			delivered++
		}
	}
	s.log.WithFields(logrus.Fields{
		"protocol":  proto,
		"packet":    pkt.Index,
		"delivered": delivered,
	}).Debug("netcore: inbound packet propagated")
}

func matches(sock *Socket, pkt *Packet, proto Protocol) bool {
	if !sock.Listen() || sock.Protocol != proto {
		return false
	}
	switch sock.Type {
	case SocketRAW:
		return true
	case SocketDGRAM:
		off := pkt.Tag(2)
		if off < 0 || off+4 > len(pkt.Payload) {
			return false
		}
		dstPort := binary.BigEndian.Uint16(pkt.Payload[off+2 : off+4])
		return dstPort == sock.LocalPort()
	default:
		// STREAM sockets do not participate in propagate_packet; TCP
		// delivery is owned by the TCP codec's own connection
		// bookkeeping.
		return false
	}
}
