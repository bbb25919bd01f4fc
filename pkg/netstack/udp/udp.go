// Package udp implements UDP header/datagram parsing, building, and
// checksum computation. It is a pure wire-format library; the socket-level
// UDP behavior (ports, delivery) lives in netcore's socket table and
// dispatcher instead of here.
package udp

import (
	"encoding/binary"
	"fmt"
	network "net"
)

const headerLen = 8

// Header is a UDP header: source/destination port, datagram length
// (header + payload), and checksum.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// Payload returns the bytes following the header in data, or nil if data
// is shorter than a header.
func (h *Header) Payload(data []byte) []byte {
	if len(data) < headerLen {
		return nil
	}
	return data[headerLen:]
}

// ParseHeader reads a UDP header from the first 8 bytes of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("udp: header too short: %d bytes", len(data))
	}
	return &Header{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
	}, nil
}

// Serialize encodes h into its 8-byte wire form.
func (h *Header) Serialize() []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	return buf
}

// CalcChecksum computes the UDP checksum over the IPv4 pseudo-header,
// this header, and payload, per RFC 768. A zero result (no checksum
// computed) is returned as-is rather than folded to 0xFFFF, matching the
// "checksum disabled" convention UDP allows over IPv4.
func (h *Header) CalcChecksum(srcIP, dstIP network.IP, payload []byte) uint16 {
	var sum uint32
	addWords := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}

	src4, dst4 := srcIP.To4(), dstIP.To4()
	if src4 == nil {
		src4 = srcIP
	}
	if dst4 == nil {
		dst4 = dstIP
	}
	addWords(src4)
	addWords(dst4)
	sum += uint32(protoUDP)
	sum += uint32(headerLen + len(payload))
	addWords(h.Serialize())
	addWords(payload)

	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	if sum == 0 {
		return 0
	}
	return ^uint16(sum)
}

const protoUDP = 17

// Datagram is a fully-addressed UDP datagram: header, endpoints, payload.
type Datagram struct {
	Header  *Header
	SrcIP   network.IP
	DstIP   network.IP
	Payload []byte
}

// NewDatagram builds a datagram with its length already set; Serialize
// fills in the checksum.
func NewDatagram(srcPort, dstPort uint16, srcIP, dstIP network.IP, payload []byte) *Datagram {
	return &Datagram{
		Header:  &Header{SrcPort: srcPort, DstPort: dstPort, Length: uint16(headerLen + len(payload))},
		SrcIP:   srcIP,
		DstIP:   dstIP,
		Payload: payload,
	}
}

// ParseDatagram reads a datagram out of data, given the IP addresses it
// arrived between (UDP's own header carries no address fields).
func ParseDatagram(data []byte, srcIP, dstIP network.IP) (*Datagram, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	payload := h.Payload(data)
	if payload == nil {
		return nil, fmt.Errorf("udp: payload missing")
	}
	return &Datagram{Header: h, SrcIP: srcIP, DstIP: dstIP, Payload: payload}, nil
}

// Serialize recomputes length and checksum, then returns the full
// header+payload wire encoding.
func (d *Datagram) Serialize() []byte {
	d.Header.Length = uint16(headerLen + len(d.Payload))
	d.Header.Checksum = d.Header.CalcChecksum(d.SrcIP, d.DstIP, d.Payload)
	return append(d.Header.Serialize(), d.Payload...)
}
