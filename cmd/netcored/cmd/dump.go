package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <pcap-file>",
	Short: "Pretty-print every frame in a pcap file layer by layer",
	Long: `dump reads an offline pcap capture and decodes each frame's Ethernet,
IPv4, and TCP/UDP/ICMP layers, the same decode chain netcored's link codec
applies to a live interface's RX queue, for inspecting what a given
capture would dispatch to.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := dumpFile(args[0]); err != nil {
			exitWithError("dump", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func dumpFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a pcap file: %w", err)
	}

	n := 0
	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		n++
		printFrame(n, data)
	}
	fmt.Printf("%d frame(s)\n", n)
	return nil
}

func printFrame(n int, data []byte) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	fmt.Printf("--- frame %d (%d bytes) ---\n", n, len(data))
	for _, l := range pkt.Layers() {
		switch v := l.(type) {
		case *layers.Ethernet:
			fmt.Printf("  eth   %s -> %s  type=%s\n", v.SrcMAC, v.DstMAC, v.EthernetType)
		case *layers.IPv4:
			fmt.Printf("  ipv4  %s -> %s  proto=%s ttl=%d\n", v.SrcIP, v.DstIP, v.Protocol, v.TTL)
		case *layers.TCP:
			fmt.Printf("  tcp   %d -> %d  seq=%d ack=%d flags=%s\n", v.SrcPort, v.DstPort, v.Seq, v.Ack, tcpFlags(v))
		case *layers.UDP:
			fmt.Printf("  udp   %d -> %d  len=%d\n", v.SrcPort, v.DstPort, v.Length)
		case *layers.ICMPv4:
			fmt.Printf("  icmp  %s\n", v.TypeCode)
		}
	}
}

func tcpFlags(t *layers.TCP) string {
	var flags string
	for name, set := range map[string]bool{
		"SYN": t.SYN, "ACK": t.ACK, "FIN": t.FIN, "RST": t.RST, "PSH": t.PSH, "URG": t.URG,
	} {
		if set {
			flags += name + " "
		}
	}
	if flags == "" {
		return "-"
	}
	return flags
}
