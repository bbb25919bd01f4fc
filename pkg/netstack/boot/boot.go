// Package boot wires the interface registry, the process table, the link
// and protocol codecs, and the in-memory drivers into a running Stack from
// a loaded config.Config. It is the one place in the repository that
// imports every concrete codec and driver package alongside netcore.
package boot

import (
	network "net"

	"github.com/sirupsen/logrus"

	"netkern/pkg/config"
	"netkern/pkg/driver"
	"netkern/pkg/net/dns"
	"netkern/pkg/netcore"
	"netkern/pkg/netstack/ethernet"
	"netkern/pkg/netstack/ip"
	"netkern/pkg/netstack/route"
	"netkern/pkg/netstack/tcp"
	"netkern/pkg/process"
	"netkern/pkg/sysfs"
)

// Daemon bundles the running subsystem handles a CLI command needs after
// boot: the socket/process API surface, the sysfs introspection tree, and
// the logger it configured.
type Daemon struct {
	Stack *netcore.Stack
	Procs *process.ProcessManager
	Sysfs *sysfs.Tree
	Log   *logrus.Logger
}

// Start builds a Stack from cfg: registers every configured interface
// (the loopback interface last) with its own Ethernet link codec,
// attaches its driver, registers the ICMP/DNS/TCP protocol codecs,
// publishes initial sysfs attributes, and finally spawns the RX/TX
// workers via Stack.Finalize.
func Start(cfg *config.Config) (*Daemon, error) {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	procs := process.NewProcessManager(process.NewPriorityScheduler())
	registry := netcore.NewInterfaceRegistry()
	tree := sysfs.New()

	ordered := make([]config.InterfaceConfig, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		if !ic.Loopback {
			ordered = append(ordered, ic)
		}
	}
	for _, ic := range cfg.Interfaces {
		if ic.Loopback {
			ordered = append(ordered, ic)
		}
	}

	byName := make(map[string]*netcore.Interface, len(cfg.Interfaces))
	for _, ic := range ordered {
		iface := registry.Register(ic.Name)
		iface.Enabled = true
		iface.Loopback = ic.Loopback
		iface.DriverTag = ic.Driver
		iface.LinkCodec = ethernet.NewCodec()
		if ic.MAC != "" {
			if mac, err := network.ParseMAC(ic.MAC); err == nil {
				iface.MAC = mac
			}
		}
		if ic.IPv4 != "" {
			iface.IPv4 = network.ParseIP(ic.IPv4)
		}
		if ic.Gateway != "" {
			iface.Gateway = network.ParseIP(ic.Gateway)
		}
		byName[ic.Name] = iface

		if ic.Loopback {
			_, loNet, _ := network.ParseCIDR("127.0.0.0/8")
			registry.Routes.AddRoute(route.Route{Dest: *loNet, Interface: ic.Name, Valid: true, Preferred: true})
		} else if iface.IPv4 != nil {
			registry.Routes.AddLocalRoute(iface.IPv4, ic.Name)
			if iface.Gateway != nil {
				registry.Routes.SetDefaultRoute(iface.Gateway, ic.Name)
			}
		}
	}

	for _, ic := range cfg.Interfaces {
		iface := byName[ic.Name]
		switch ic.Driver {
		case "memlink":
			peer, ok := byName[ic.Peer]
			if ok && iface.DriverTag == "memlink" {
				driver.AttachMemLink(iface, peer)
			}
		default:
			driver.AttachLoopback(iface)
		}
	}

	stack := netcore.NewStack(registry, procs, procs, log)

	var anyMAC network.HardwareAddr
	var anyIP network.IP
	if lo := byName[loopbackName(cfg)]; lo != nil {
		anyMAC, anyIP = lo.MAC, lo.IPv4
	}
	stack.RegisterCodec(netcore.ProtocolICMP, ip.NewCodec(anyMAC, anyIP))
	stack.RegisterCodec(netcore.ProtocolDNS, dns.NewCodec(anyMAC, anyIP))
	stack.RegisterCodec(netcore.ProtocolTCP, tcp.NewCodec(anyMAC, anyIP))

	for _, ic := range cfg.Interfaces {
		iface := byName[ic.Name]
		rx, tx := iface.QueueDepths()
		tree.PublishInterface(ic.Name, sysfs.InterfaceStats{
			Enabled: iface.Enabled, MAC: ic.MAC, IPv4: ic.IPv4, Gateway: ic.Gateway,
			Loopback: ic.Loopback, DriverTag: ic.Driver, RXDepth: rx, TXDepth: tx,
		})
	}

	stack.Finalize()
	return &Daemon{Stack: stack, Procs: procs, Sysfs: tree, Log: log}, nil
}

func loopbackName(cfg *config.Config) string {
	for _, ic := range cfg.Interfaces {
		if ic.Loopback {
			return ic.Name
		}
	}
	return ""
}
