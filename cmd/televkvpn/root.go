package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "televkvpn",
	Short:   "Tunnel a virtual network interface over Telegram or VKontakte",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "televkvpn.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initConfigCmd)
}
