package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweeney/beegreen/internal/config"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/onboarding"
	"github.com/sweeney/beegreen/internal/store"
)

// withFlow opens the store and runs fn with an onboarding flow on it.
func (o *options) withFlow(fn func(f *onboarding.Flow) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	session := mqtt.NewRealSession(cfg.MQTT.ConnectTimeout, cfg.MQTT.ClientIDPrefix, log)
	return fn(onboarding.New(session, st, cfg.MQTT.Transport, log))
}

func newOnboardCmd(opts *options) *cobra.Command {
	var dc store.DeviceConfig
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Test broker credentials and save them as the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withFlow(func(f *onboarding.Flow) error {
				saved, err := f.Onboard(cmd.Context(), dc)
				if err != nil {
					return err
				}
				printDevice(cmd.OutOrStdout(), saved)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dc.MQTTServer, "server", "", "MQTT broker host")
	cmd.Flags().IntVar(&dc.MQTTPort, "port", 8884, "MQTT broker port")
	cmd.Flags().StringVar(&dc.MQTTUser, "user", "", "MQTT username")
	cmd.Flags().StringVar(&dc.MQTTPassword, "password", "", "MQTT password")
	cmd.Flags().StringVar(&dc.WiFiSSID, "wifi-ssid", "", "WiFi network the device joins")
	cmd.Flags().StringVar(&dc.WiFiPassword, "wifi-password", "", "WiFi password")
	return cmd
}

func newProvisionCmd(opts *options) *cobra.Command {
	var andOnboard bool
	cmd := &cobra.Command{
		Use:   "provision [FORM|-]",
		Short: "Record the device setup form (URL-encoded; - reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readForm(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			dc, err := onboarding.ParseProvisioningForm(body)
			if err != nil {
				return err
			}
			return opts.withFlow(func(f *onboarding.Flow) error {
				if err := f.Provision(dc); err != nil {
					return err
				}
				if andOnboard {
					if dc, err = f.Onboard(cmd.Context(), dc); err != nil {
						return err
					}
				}
				printDevice(cmd.OutOrStdout(), dc)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&andOnboard, "onboard", false, "Also test the broker fields and onboard the device")
	return cmd
}

func readForm(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read form: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func newForgetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete the saved device and its schedule cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withFlow(func(f *onboarding.Flow) error {
				if err := f.Forget(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "device forgotten")
				return nil
			})
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = "beegreen.yaml"
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
