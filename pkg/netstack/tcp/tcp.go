package tcp

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	network "net"
	"sync"
)

// TCP header length in bytes (without options).
const HeaderLength = 20

// TCP flags.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

// Connection states. Only the states the synchronous connect/send/
// disconnect path passes through are modeled.
const (
	StateClosed uint8 = iota
	StateSynSent
	StateEstablished
	StateFinWait
)

// DefaultWindowSize is the receive window advertised on every outbound
// segment.
const DefaultWindowSize = 65535

// Header represents a TCP header.
type Header struct {
	SrcPort    uint16 // Source port
	DstPort    uint16 // Destination port
	SeqNum     uint32 // Sequence number
	AckNum     uint32 // Acknowledgment number
	DataOffset uint8  // Data offset (number of 32-bit words)
	Flags      uint8  // Control flags
	Window     uint16 // Window size
	Checksum   uint16 // Checksum
	Urgent     uint16 // Urgent pointer
	Options    []byte // TCP options
}

// GetPayload returns the segment payload (data after the header).
func (h *Header) GetPayload(data []byte) []byte {
	offset := int(h.DataOffset) * 4
	if offset > len(data) {
		return nil
	}
	return data[offset:]
}

// ParseHeader parses a TCP header from raw bytes.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("TCP header too short: %d bytes", len(data))
	}

	h := &Header{
		SrcPort:    binary.BigEndian.Uint16(data[0:2]),
		DstPort:    binary.BigEndian.Uint16(data[2:4]),
		SeqNum:     binary.BigEndian.Uint32(data[4:8]),
		AckNum:     binary.BigEndian.Uint32(data[8:12]),
		DataOffset: data[12] >> 4,
		Flags:      data[13],
		Window:     binary.BigEndian.Uint16(data[14:16]),
		Checksum:   binary.BigEndian.Uint16(data[16:18]),
		Urgent:     binary.BigEndian.Uint16(data[18:20]),
	}

	// Parse options
	optLen := int(h.DataOffset)*4 - HeaderLength
	if optLen > 0 {
		if len(data) < HeaderLength+optLen {
			return nil, fmt.Errorf("TCP options too short")
		}
		h.Options = data[HeaderLength : HeaderLength+optLen]
	}

	return h, nil
}

// Serialize serializes the TCP header to bytes.
func (h *Header) Serialize() []byte {
	offset := int(h.DataOffset) * 4
	buf := make([]byte, offset)

	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], h.SeqNum)
	binary.BigEndian.PutUint32(buf[8:12], h.AckNum)
	buf[12] = h.DataOffset << 4
	buf[13] = h.Flags
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.Urgent)

	if len(h.Options) > 0 {
		copy(buf[20:], h.Options)
	}

	return buf
}

// CalcChecksum calculates the TCP checksum using pseudo-header.
func (h *Header) CalcChecksum(srcIP, dstIP network.IP, payload []byte) uint16 {
	sum := calcPseudoHeaderChecksum(srcIP, dstIP, 6, uint16(len(h.Serialize())+len(payload)))

	// Sum header and payload
	data := append(h.Serialize(), payload...)
	for i := 0; i < len(data); i += 2 {
		if i+1 < len(data) {
			sum += uint32(data[i])<<8 | uint32(data[i+1])
		} else {
			sum += uint32(data[i]) << 8
		}
	}

	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}

	return ^uint16(sum)
}

func calcPseudoHeaderChecksum(srcIP, dstIP network.IP, protocol uint8, length uint16) uint32 {
	sum := uint32(0)

	src, dst := srcIP.To4(), dstIP.To4()
	if src == nil {
		src = srcIP
	}
	if dst == nil {
		dst = dstIP
	}
	for _, addr := range [][]byte{src, dst} {
		for i := 0; i+1 < len(addr); i += 2 {
			sum += uint32(addr[i])<<8 | uint32(addr[i+1])
		}
	}

	sum += uint32(protocol)
	sum += uint32(length)

	return sum
}

// Segment represents a complete TCP segment.
type Segment struct {
	Header  *Header
	SrcIP   network.IP
	DstIP   network.IP
	Payload []byte
}

// ParseSegment parses a TCP segment from raw bytes.
func ParseSegment(data []byte, srcIP, dstIP network.IP) (*Segment, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	payload := header.GetPayload(data)

	return &Segment{
		Header:  header,
		SrcIP:   srcIP,
		DstIP:   dstIP,
		Payload: payload,
	}, nil
}

// Serialize serializes the segment to bytes.
func (s *Segment) Serialize() []byte {
	// Update checksum
	s.Header.Checksum = s.Header.CalcChecksum(s.SrcIP, s.DstIP, s.Payload)

	// Build full segment
	segment := s.Header.Serialize()
	if len(s.Payload) > 0 {
		segment = append(segment, s.Payload...)
	}

	return segment
}

// NewSegment creates a new TCP segment.
func NewSegment(srcPort, dstPort uint16, srcIP, dstIP network.IP, flags uint8, seq, ack uint32, payload []byte) *Segment {
	h := &Header{
		SrcPort:    srcPort,
		DstPort:    dstPort,
		SeqNum:     seq,
		AckNum:     ack,
		DataOffset: 5, // 20 bytes = 5 * 4
		Flags:      flags,
		Window:     DefaultWindowSize,
		Urgent:     0,
	}

	return &Segment{
		Header:  h,
		SrcIP:   srcIP,
		DstIP:   dstIP,
		Payload: payload,
	}
}

// ConnectionID identifies a TCP connection.
type ConnectionID struct {
	SrcIP   network.IP
	SrcPort uint16
	DstIP   network.IP
	DstPort uint16
}

// String returns a string representation of the connection ID.
func (c *ConnectionID) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", c.SrcIP, c.SrcPort, c.DstIP, c.DstPort)
}

// Connection tracks the sequence-number state for one four-tuple. The
// codec drives it synchronously: Open consumes the SYN's sequence
// number, every outbound payload advances SND through Advance, every
// inbound segment moves RCV forward through Observe. Retransmission and
// congestion control are not modeled.
type Connection struct {
	ID ConnectionID

	mu    sync.Mutex
	state uint8
	ISS   uint32 // initial send sequence number
	snd   uint32 // next sequence number to send
	rcv   uint32 // next sequence number expected from the peer
}

// NewConnection creates a closed connection with a fresh ISS.
func NewConnection(id ConnectionID) *Connection {
	iss := rand.Uint32()
	return &Connection{ID: id, state: StateClosed, ISS: iss, snd: iss}
}

// State returns the connection's current state.
func (c *Connection) State() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open records the SYN going out: the SYN occupies one sequence number.
func (c *Connection) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateSynSent
	c.snd = c.ISS + 1
}

// Establish marks the handshake complete.
func (c *Connection) Establish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateEstablished
}

// NextSegment returns the seq/ack pair the next outbound segment
// carries.
func (c *Connection) NextSegment() (seq, ack uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snd, c.rcv
}

// Advance consumes n payload bytes' worth of send sequence space.
func (c *Connection) Advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snd += uint32(n)
}

// Observe updates the receive cursor from an inbound segment, moving it
// only forward so a reordered duplicate cannot drag it back.
func (c *Connection) Observe(seq uint32, payloadLen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := seq + uint32(payloadLen)
	if seqLess(c.rcv, next) {
		c.rcv = next
	}
}

// Close records the FIN going out; like the SYN it occupies one
// sequence number.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFinWait
	c.snd++
}

// seqLess returns true if a < b (modulo 2^32).
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
