// Package dns implements DNS message parsing/building plus a
// netcore.ProtocolCodec that drives outbound queries through the
// simulated network stack's own TX path — no OS sockets, no recursive
// resolution against real upstream servers. Responding to an inbound
// query would mean acting as a name server, which is out of scope.
//
// Example usage:
//
//	fd, _ := stack.Open(pid, netcore.DomainINET, netcore.SocketDGRAM, netcore.ProtocolDNS)
//	desc := &netcore.DNSDescriptor{Query: true, Name: "example.com", ServerIP: dnsServer}
//	packetFD, _, _ := stack.PreparePacket(pid, fd, desc, buf)
//	stack.FinalizePacket(pid, fd, packetFD)
package dns
