// netcored boots the kernel-resident network subsystem as a standalone
// process: interface registry, RX/TX workers, socket table, and the
// ICMP/DNS/TCP protocol codecs.
package main

import (
	"fmt"
	"os"

	"netkern/cmd/netcored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
