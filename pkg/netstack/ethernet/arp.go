package ethernet

import (
	"encoding/binary"
	"fmt"
	network "net"
	"time"

	"netkern/pkg/netstack"
)

// ARP operation codes carried in ARPPacket.Operation.
const (
	ARPOperationRequest uint16 = 1
	ARPOperationReply   uint16 = 2
)

// ARPPacketSize is the wire size of an ARP packet over Ethernet/IPv4:
// fixed 8-byte header plus two MAC/IP address pairs.
const ARPPacketSize = 28

const (
	arpHardwareEthernet uint16 = 1
	arpAddrLenMAC              = 6
	arpAddrLenIPv4             = 4
)

// ARPPacket is an ARP request or reply for Ethernet/IPv4.
type ARPPacket struct {
	HardwareType uint16
	ProtocolType uint16
	HardwareSize uint8
	ProtocolSize uint8
	Operation    uint16
	SenderMAC    network.HardwareAddr
	SenderIP     network.IP
	TargetMAC    network.HardwareAddr
	TargetIP     network.IP
}

// ParseARPPacket reads an ARP packet out of data.
func ParseARPPacket(data []byte) (*ARPPacket, error) {
	if len(data) < ARPPacketSize {
		return nil, fmt.Errorf("ethernet: ARP packet too short: %d bytes", len(data))
	}
	return &ARPPacket{
		HardwareType: binary.BigEndian.Uint16(data[0:2]),
		ProtocolType: binary.BigEndian.Uint16(data[2:4]),
		HardwareSize: data[4],
		ProtocolSize: data[5],
		Operation:    binary.BigEndian.Uint16(data[6:8]),
		SenderMAC:    network.HardwareAddr(data[8:14]),
		SenderIP:     network.IP(data[14:18]),
		TargetMAC:    network.HardwareAddr(data[18:24]),
		TargetIP:     network.IP(data[24:28]),
	}, nil
}

// Serialize encodes p into its 28-byte wire form.
func (p *ARPPacket) Serialize() []byte {
	buf := make([]byte, ARPPacketSize)
	binary.BigEndian.PutUint16(buf[0:2], p.HardwareType)
	binary.BigEndian.PutUint16(buf[2:4], p.ProtocolType)
	buf[4], buf[5] = p.HardwareSize, p.ProtocolSize
	binary.BigEndian.PutUint16(buf[6:8], p.Operation)
	copy(buf[8:14], p.SenderMAC)
	copy(buf[14:18], p.SenderIP.To4())
	copy(buf[18:24], p.TargetMAC)
	copy(buf[24:28], p.TargetIP.To4())
	return buf
}

func newARPPacket(op uint16, senderMAC network.HardwareAddr, senderIP network.IP, targetMAC network.HardwareAddr, targetIP network.IP) *ARPPacket {
	return &ARPPacket{
		HardwareType: arpHardwareEthernet,
		ProtocolType: uint16(netstack.EtherTypeIPv4),
		HardwareSize: arpAddrLenMAC,
		ProtocolSize: arpAddrLenIPv4,
		Operation:    op,
		SenderMAC:    senderMAC,
		SenderIP:     senderIP,
		TargetMAC:    targetMAC,
		TargetIP:     targetIP,
	}
}

// NewARPRequest builds a "who has targetIP" request from senderMAC/IP,
// with a zeroed target MAC.
func NewARPRequest(senderMAC network.HardwareAddr, senderIP, targetIP network.IP) *ARPPacket {
	zeroMAC := network.HardwareAddr{0, 0, 0, 0, 0, 0}
	return newARPPacket(ARPOperationRequest, senderMAC, senderIP, zeroMAC, targetIP)
}

// NewARPReply builds the reply to a request, identifying senderMAC/IP as
// the owner of the address the requester (targetMAC/IP here) asked about.
func NewARPReply(senderMAC network.HardwareAddr, senderIP network.IP, targetMAC network.HardwareAddr, targetIP network.IP) *ARPPacket {
	return newARPPacket(ARPOperationReply, senderMAC, senderIP, targetMAC, targetIP)
}

// IsValid reports whether p declares the Ethernet/IPv4 address sizes this
// package assumes everywhere else.
func (p *ARPPacket) IsValid() bool {
	return p.HardwareType == arpHardwareEthernet &&
		p.ProtocolType == uint16(netstack.EtherTypeIPv4) &&
		p.HardwareSize == arpAddrLenMAC &&
		p.ProtocolSize == arpAddrLenIPv4
}

// ARPState is the reachability state of an ARPEntry.
type ARPState int

const (
	ARPStateIncomplete ARPState = iota
	ARPStateReachable
	ARPStateStale
	ARPStateFailed
)

// ARPEntry is one IP-to-MAC binding in an ARPTable.
type ARPEntry struct {
	MAC     network.HardwareAddr
	IP      network.IP
	Created time.Time
	Updated time.Time
	State   ARPState
}

// ARPTable is a cache of IP-to-MAC bindings learned from observed ARP
// traffic. It is not safe for concurrent use; callers serialize access to
// it the same way they serialize access to the interface it belongs to.
type ARPTable struct {
	entries map[string]*ARPEntry
}

// NewARPTable returns an empty ARP cache.
func NewARPTable() *ARPTable {
	return &ARPTable{entries: make(map[string]*ARPEntry)}
}

// Lookup returns the MAC bound to ip, or an error if the table has no
// entry for it.
func (t *ARPTable) Lookup(ip network.IP) (network.HardwareAddr, error) {
	entry, ok := t.entries[ip.String()]
	if !ok {
		return nil, fmt.Errorf("ethernet: no ARP entry for %s", ip)
	}
	return entry.MAC, nil
}

// Set records or refreshes the binding between ip and mac, marking it
// reachable.
func (t *ARPTable) Set(ip network.IP, mac network.HardwareAddr) {
	now := time.Now()
	key := ip.String()
	if entry, ok := t.entries[key]; ok {
		entry.MAC, entry.Updated, entry.State = mac, now, ARPStateReachable
		return
	}
	t.entries[key] = &ARPEntry{MAC: mac, IP: ip, Created: now, Updated: now, State: ARPStateReachable}
}

// Remove deletes the entry for ip, if any.
func (t *ARPTable) Remove(ip network.IP) {
	delete(t.entries, ip.String())
}
