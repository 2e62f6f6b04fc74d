// Command beegreen monitors and controls a BeeGreen irrigation pump over MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "beegreen",
		Short:         "BeeGreen pump client",
		Long:          "Client for a BeeGreen irrigation pump. Tracks whether the device is online, starts and stops the pump, and manages its watering schedules.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file path (default ./beegreen.yaml, then the user config dir)")

	root.AddCommand(
		newRunCmd(opts),
		newOnboardCmd(opts),
		newProvisionCmd(opts),
		newForgetCmd(opts),
		newStatusCmd(opts),
		newPumpCmd(opts),
		newScheduleCmd(opts),
		newTimelineCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "beegreen %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
