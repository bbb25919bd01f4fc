package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"netkern/pkg/config"
	"netkern/pkg/netstack/boot"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the network subsystem and block until a signal arrives",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			exitWithError("load config", err)
		}

		d, err := boot.Start(cfg)
		if err != nil {
			exitWithError("boot", err)
		}
		defer d.Stack.Shutdown()

		d.Log.WithField("interfaces", len(cfg.Interfaces)).Info("netcored: subsystem running")
		for _, line := range d.Sysfs.Snapshot() {
			fmt.Println(line)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		d.Log.Info("netcored: shutting down")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
