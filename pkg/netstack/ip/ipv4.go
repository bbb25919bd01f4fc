// Package ip implements IPv4 header/datagram parsing, serialization,
// checksums, and fragmentation, plus ICMP on top and the ProtocolCodec
// that drives ICMP echo requests through netcore's socket API.
package ip

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	network "net"
)

// HeaderLength is the IPv4 header length in bytes, excluding options.
const HeaderLength = 20

// IP protocol numbers carried in Header.Protocol.
const (
	ProtocolICMP uint8 = 1
	ProtocolTCP  uint8 = 6
	ProtocolUDP  uint8 = 17
)

const moreFragmentsFlag = 0x1

// Header is an IPv4 header.
type Header struct {
	Version    uint8
	IHL        uint8 // header length in 32-bit words
	TOS        uint8
	Length     uint16 // total datagram length, header + payload
	ID         uint16
	Flags      uint8
	FragOffset uint16
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      network.IP
	DstIP      network.IP
	Options    []byte // present when IHL > 5
}

// ParseHeader reads an IPv4 header out of the front of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("ip: header too short: %d bytes", len(data))
	}

	h := &Header{
		Version:    data[0] >> 4,
		IHL:        data[0] & 0x0F,
		TOS:        data[1],
		Length:     binary.BigEndian.Uint16(data[2:4]),
		ID:         binary.BigEndian.Uint16(data[4:6]),
		Flags:      data[6] >> 5,
		FragOffset: binary.BigEndian.Uint16(data[6:8]) & 0x1FFF,
		TTL:        data[8],
		Protocol:   data[9],
		Checksum:   binary.BigEndian.Uint16(data[10:12]),
		SrcIP:      network.IPv4(data[12], data[13], data[14], data[15]),
		DstIP:      network.IPv4(data[16], data[17], data[18], data[19]),
	}

	if h.IHL > 5 {
		optLen := int(h.IHL-5) * 4
		if len(data) < HeaderLength+optLen {
			return nil, fmt.Errorf("ip: options truncated")
		}
		h.Options = data[HeaderLength : HeaderLength+optLen]
	}
	return h, nil
}

// Serialize encodes the header, including any options, into its wire
// form. The payload is not part of the result; Datagram.Serialize appends
// it.
func (h *Header) Serialize() []byte {
	n := int(h.IHL) * 4
	if n < HeaderLength {
		n = HeaderLength + len(h.Options)
	}
	buf := make([]byte, n)

	buf[0] = (h.Version << 4) | (h.IHL & 0x0F)
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags)<<13|(h.FragOffset&0x1FFF))
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], h.Checksum)
	copy(buf[12:16], h.SrcIP.To4())
	copy(buf[16:20], h.DstIP.To4())
	copy(buf[20:], h.Options)
	return buf
}

// CalcChecksum returns the one's-complement header checksum, computed
// with the existing Checksum field zeroed.
func (h *Header) CalcChecksum() uint16 {
	buf := h.Serialize()
	buf[10], buf[11] = 0, 0

	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return ^uint16(sum)
}

// Payload returns data past the header, using IHL to find the boundary.
func (h *Header) Payload(data []byte) []byte {
	n := int(h.IHL) * 4
	if n > len(data) {
		return nil
	}
	return data[n:]
}

func (h *Header) moreFragments() bool   { return h.Flags&moreFragmentsFlag != 0 }
func (h *Header) IsFragment() bool      { return h.moreFragments() || h.FragOffset != 0 }
func (h *Header) IsFirstFragment() bool { return h.FragOffset == 0 }
func (h *Header) IsLastFragment() bool  { return !h.moreFragments() }

// Datagram pairs a Header with its payload bytes.
type Datagram struct {
	Header  *Header
	Payload []byte
}

// NewDatagram builds an un-fragmented, option-free datagram.
func NewDatagram(srcIP, dstIP network.IP, protocol uint8, payload []byte) *Datagram {
	return &Datagram{
		Header: &Header{
			Version: 4, IHL: 5, TTL: 64, Protocol: protocol,
			Length: uint16(HeaderLength + len(payload)),
			SrcIP:  srcIP, DstIP: dstIP,
		},
		Payload: payload,
	}
}

// ParseDatagram parses a full datagram (header + payload) out of data.
func ParseDatagram(data []byte) (*Datagram, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	payload := h.Payload(data)
	if payload == nil {
		return nil, fmt.Errorf("ip: payload missing")
	}
	return &Datagram{Header: h, Payload: payload}, nil
}

// Serialize recomputes length and checksum, then returns the encoded
// header followed by the payload.
func (d *Datagram) Serialize() []byte {
	headerLen := int(d.Header.IHL) * 4
	d.Header.Length = uint16(headerLen + len(d.Payload))
	d.Header.Checksum = d.Header.CalcChecksum()

	out := d.Header.Serialize()
	return append(out, d.Payload...)
}

// Fragmentation tuning. Fragment offsets are counted in 8-byte units, so
// every fragment's payload but the last must itself be a multiple of 8.
const (
	minFragmentPayload = 8
	fragOffsetUnit     = 8
)

// Fragment splits d into pieces no larger than mtu, honoring the 8-byte
// fragment-offset granularity IPv4 requires.
func Fragment(d *Datagram, mtu int) ([]*Datagram, error) {
	headerLen := int(d.Header.IHL) * 4
	maxPayload := ((mtu - headerLen) / fragOffsetUnit) * fragOffsetUnit
	if maxPayload < minFragmentPayload {
		return nil, fmt.Errorf("ip: mtu %d too small to fragment", mtu)
	}

	id := d.Header.ID
	if id == 0 {
		id = uint16(rand.Uint32())
	}

	var out []*Datagram
	for offset := 0; offset < len(d.Payload); {
		end := offset + maxPayload
		last := end >= len(d.Payload)
		if last {
			end = len(d.Payload)
		}

		var flags uint8
		if !last {
			flags = moreFragmentsFlag
		}
		chunk := make([]byte, end-offset)
		copy(chunk, d.Payload[offset:end])

		out = append(out, &Datagram{
			Header: &Header{
				Version: d.Header.Version, IHL: 5, TOS: d.Header.TOS,
				Length: uint16(headerLen + len(chunk)), ID: id, Flags: flags,
				FragOffset: uint16(offset / fragOffsetUnit),
				TTL:        d.Header.TTL, Protocol: d.Header.Protocol,
				SrcIP: d.Header.SrcIP, DstIP: d.Header.DstIP,
			},
			Payload: chunk,
		})
		offset = end
	}
	return out, nil
}

// Reassemble rebuilds a complete datagram from an ordered set of
// fragments sharing one ID/source/destination.
func Reassemble(fragments []*Datagram) (*Datagram, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("ip: no fragments")
	}
	first := fragments[0]
	if fragments[len(fragments)-1].Header.moreFragments() {
		return nil, fmt.Errorf("ip: last fragment still has more-fragments set")
	}

	total, expected := 0, 0
	for _, f := range fragments {
		if f.Header.ID != first.Header.ID {
			return nil, fmt.Errorf("ip: fragment id mismatch")
		}
		if !f.Header.SrcIP.Equal(first.Header.SrcIP) || !f.Header.DstIP.Equal(first.Header.DstIP) {
			return nil, fmt.Errorf("ip: fragment endpoint mismatch")
		}
		if int(f.Header.FragOffset)*fragOffsetUnit != expected {
			return nil, fmt.Errorf("ip: fragment gap or overlap at offset %d", expected)
		}
		expected += len(f.Payload)
		total += len(f.Payload)
	}

	payload := make([]byte, total)
	offset := 0
	for _, f := range fragments {
		offset += copy(payload[offset:], f.Payload)
	}

	return &Datagram{
		Header: &Header{
			Version: first.Header.Version, IHL: first.Header.IHL, TOS: first.Header.TOS,
			Length: uint16(int(first.Header.IHL)*4 + total), ID: first.Header.ID,
			TTL: first.Header.TTL, Protocol: first.Header.Protocol,
			SrcIP: first.Header.SrcIP, DstIP: first.Header.DstIP,
		},
		Payload: payload,
	}, nil
}
