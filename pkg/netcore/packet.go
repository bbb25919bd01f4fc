// Package netcore implements the kernel-resident network subsystem: the
// interface registry, the per-interface RX/TX worker pipeline, the socket
// table, the inbound packet dispatcher, and the socket API that ties them
// together. Concrete link/network/transport codecs, drivers, and the
// process/socket scheduler are external collaborators consumed through the
// interfaces declared in this package.
package netcore

import "sync/atomic"

// MaxLayers bounds the number of protocol layers a Packet can tag. Layer 0
// is Ethernet, layer 1 is IP, layer 2 is the transport header (UDP/TCP/ICMP).
const MaxLayers = 4

var packetIndexCounter uint64

// Packet is an owned, heap-allocated frame buffer moving between the
// driver, the worker goroutines, the codecs, and the socket table. A
// Packet's Payload is owned by exactly one agent at a time: ownership
// transfers across queue boundaries and is never retained by the previous
// owner after handoff.
type Packet struct {
	// Payload is the raw frame bytes, starting at the Ethernet header.
	Payload []byte
	// InterfaceID identifies which interface this packet arrived on or
	// will be sent through.
	InterfaceID int
	// Index is a monotonically assigned sequence number, unique for the
	// lifetime of the process. It is what WaitForPacket hands back to
	// the caller.
	Index uint64
	// User is true for packets whose Payload was supplied by a user
	// process (via PreparePacket's caller-provided buffer) rather than
	// allocated by the kernel side. The TX worker panics if a user packet
	// reaches the TX queue, rather than releasing memory the caller owns.
	User bool

	tags [MaxLayers]int
}

// NewPacket allocates a kernel-owned packet wrapping payload.
func NewPacket(ifaceID int, payload []byte) *Packet {
	return &Packet{
		Payload:     payload,
		InterfaceID: ifaceID,
		Index:       atomic.AddUint64(&packetIndexCounter, 1),
		tags:        [MaxLayers]int{-1, -1, -1, -1},
	}
}

// NewUserPacket allocates a packet wrapping a user-supplied buffer.
func NewUserPacket(ifaceID int, payload []byte) *Packet {
	p := NewPacket(ifaceID, payload)
	p.User = true
	return p
}

// Tag returns the byte offset of the layer-k header within Payload, or -1
// if no codec has recorded one.
func (p *Packet) Tag(layer int) int {
	if layer < 0 || layer >= MaxLayers {
		return -1
	}
	return p.tags[layer]
}

// SetTag records the byte offset at which the layer-k header begins.
func (p *Packet) SetTag(layer, offset int) {
	if layer < 0 || layer >= MaxLayers {
		return
	}
	p.tags[layer] = offset
}

// Clone returns a new, independently-owned kernel packet holding a copy of
// p's payload. Used by the dispatcher to hand a copy to each matching
// listening socket without touching the original, still-in-flight packet.
func (p *Packet) Clone() *Packet {
	cp := make([]byte, len(p.Payload))
	copy(cp, p.Payload)
	c := NewPacket(p.InterfaceID, cp)
	c.tags = p.tags
	return c
}
