package netcore

// ProtocolCodec is the capability every socket-level protocol (ICMP, DNS,
// TCP) must implement: build an outbound packet's headers into a
// caller-supplied buffer, and finalize (checksum + enqueue) a previously
// prepared packet. desc is protocol-specific; codecs type-assert it
// themselves (ICMPDescriptor, DNSDescriptor, or nil for TCP, which derives
// everything it needs from the socket's connection state).
type ProtocolCodec interface {
	Prepare(stack *Stack, sock *Socket, desc any, buffer []byte) (*Packet, int, error)
	Finalize(stack *Stack, sock *Socket, pkt *Packet) error
}

// Connector is an optional capability: codecs that drive a handshake
// (currently only TCP) implement it. Checked with a type assertion from
// Stack.Connect/Disconnect rather than being part of ProtocolCodec, so
// connectionless codecs don't carry stub methods.
type Connector interface {
	Connect(stack *Stack, sock *Socket, iface *Interface) error
	Disconnect(stack *Stack, sock *Socket, iface *Interface) error
}

// ICMPDescriptor is the prepare_packet descriptor for ProtocolICMP.
type ICMPDescriptor struct {
	TargetIP    []byte
	PayloadSize int
	Type        uint8
	Code        uint8
}

// DNSDescriptor is the prepare_packet descriptor for ProtocolDNS.
type DNSDescriptor struct {
	Query      bool
	SourcePort uint16
	ServerIP   []byte
	ServerPort uint16
	Name       string
	RecordType uint16
}
