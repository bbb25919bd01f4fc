// Package netstack holds the wire-level types shared by the protocol
// codec packages beneath it, currently the EtherType values the Ethernet
// framer and ARP dispatch on.
//
// Layer structure of the subpackages:
//   - Layer 2 (Link): Ethernet frames, ARP (netstack/ethernet)
//   - Layer 3 (Network): IPv4, ICMP, fragmentation (netstack/ip)
//   - Layer 4 (Transport): TCP (netstack/tcp), UDP (netstack/udp)
//
// The socket-facing behavior (ports, delivery, prepare/finalize) lives in
// pkg/netcore; the packages here only parse and build frames on its
// behalf.
package netstack
