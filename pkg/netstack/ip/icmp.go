package ip

import (
	"encoding/binary"
	"fmt"
)

// icmpHeaderLength is the fixed size of an ICMP header: type, code,
// checksum, and a 4-byte ID/sequence pair shared by echo request/reply.
const icmpHeaderLength = 8

// ICMP message types this stack builds or recognizes.
const (
	ICMPTypeEchoReply      uint8 = 0
	ICMPTypeDestUnreach    uint8 = 3
	ICMPTypeSourceQuench   uint8 = 4
	ICMPTypeRedirect       uint8 = 5
	ICMPTypeEcho           uint8 = 8
	ICMPTypeTimeExceeded   uint8 = 11
	ICMPTypeParamProblem   uint8 = 12
	ICMPTypeTimestamp      uint8 = 13
	ICMPTypeTimestampReply uint8 = 14
	ICMPTypeInfoRequest    uint8 = 15
	ICMPTypeInfoReply      uint8 = 16
)

// Codes carried by an ICMPTypeDestUnreach message.
const (
	ICMPCodeNetUnreach     uint8 = 0
	ICMPCodeHostUnreach    uint8 = 1
	ICMPCodeProtoUnreach   uint8 = 2
	ICMPCodePortUnreach    uint8 = 3
	ICMPCodeFragNeeded     uint8 = 4
	ICMPCodeSrcRouteFailed uint8 = 5
)

// ICMPHeader is the 8-byte header common to every ICMP message. ID and
// Seq only carry meaning for echo request/reply; other message types
// leave them zero.
type ICMPHeader struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
}

// ParseICMPHeader reads an ICMP header from the front of data.
func ParseICMPHeader(data []byte) (*ICMPHeader, error) {
	if len(data) < icmpHeaderLength {
		return nil, fmt.Errorf("icmp: header too short: %d bytes", len(data))
	}
	return &ICMPHeader{
		Type:     data[0],
		Code:     data[1],
		Checksum: binary.BigEndian.Uint16(data[2:4]),
		ID:       binary.BigEndian.Uint16(data[4:6]),
		Seq:      binary.BigEndian.Uint16(data[6:8]),
	}, nil
}

// Serialize encodes h into its 8-byte wire form.
func (h *ICMPHeader) Serialize() []byte {
	buf := make([]byte, icmpHeaderLength)
	buf[0], buf[1] = h.Type, h.Code
	binary.BigEndian.PutUint16(buf[2:4], h.Checksum)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], h.Seq)
	return buf
}

// Payload returns the bytes following an 8-byte ICMP header in data.
func (h *ICMPHeader) Payload(data []byte) []byte {
	if len(data) < icmpHeaderLength {
		return nil
	}
	return data[icmpHeaderLength:]
}

// CalcChecksum returns the one's-complement checksum of the header
// (with Checksum zeroed) followed by data, per RFC 792.
func (h *ICMPHeader) CalcChecksum(data []byte) uint16 {
	clean := *h
	clean.Checksum = 0

	var sum uint32
	for _, b := range [][]byte{clean.Serialize(), data} {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}
	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return ^uint16(sum)
}

// Message pairs an ICMPHeader with its trailing payload: echo data, or
// the offending IP header and leading octets for an error message.
type Message struct {
	Header  *ICMPHeader
	Payload []byte
}

// ParseMessage parses a full ICMP message out of data.
func ParseMessage(data []byte) (*Message, error) {
	h, err := ParseICMPHeader(data)
	if err != nil {
		return nil, err
	}
	return &Message{Header: h, Payload: h.Payload(data)}, nil
}

// Serialize recomputes the checksum over the current payload and returns
// the encoded header followed by the payload.
func (m *Message) Serialize() []byte {
	m.Header.Checksum = m.Header.CalcChecksum(m.Payload)
	return append(m.Header.Serialize(), m.Payload...)
}

func newMessage(typ, code uint8, id, seq uint16, payload []byte) *Message {
	return &Message{
		Header:  &ICMPHeader{Type: typ, Code: code, ID: id, Seq: seq},
		Payload: payload,
	}
}

// NewEchoRequest builds an echo (ping) request carrying data as its
// payload, identified by id/seq.
func NewEchoRequest(id, seq uint16, data []byte) *Message {
	return newMessage(ICMPTypeEcho, 0, id, seq, data)
}

// NewEchoReply builds the reply to an echo request with the same
// id/seq, echoing data back.
func NewEchoReply(id, seq uint16, data []byte) *Message {
	return newMessage(ICMPTypeEchoReply, 0, id, seq, data)
}

// NewDestUnreach builds a destination-unreachable message of the given
// code, carrying the offending datagram's IP header (and leading
// payload octets) as origIPHdr.
func NewDestUnreach(code uint8, origIPHdr []byte) *Message {
	return newMessage(ICMPTypeDestUnreach, code, 0, 0, origIPHdr)
}

// NewTimeExceeded builds a TTL-expired message carrying the offending
// datagram's IP header as origIPHdr.
func NewTimeExceeded(origIPHdr []byte) *Message {
	return newMessage(ICMPTypeTimeExceeded, 0, 0, 0, origIPHdr)
}

// IsEchoRequest reports whether m is an echo (ping) request.
func (m *Message) IsEchoRequest() bool { return m.Header.Type == ICMPTypeEcho }

// IsEchoReply reports whether m is an echo (ping) reply.
func (m *Message) IsEchoReply() bool { return m.Header.Type == ICMPTypeEchoReply }

// IsDestUnreach reports whether m is a destination-unreachable message.
func (m *Message) IsDestUnreach() bool { return m.Header.Type == ICMPTypeDestUnreach }

// IsTimeExceeded reports whether m is a TTL-expired message.
func (m *Message) IsTimeExceeded() bool { return m.Header.Type == ICMPTypeTimeExceeded }
