package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/didierodjou/televkvpn/internal/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file with defaults applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if err := config.Write(cfg, configPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Wrote starter configuration to %s\n", configPath)
		fmt.Println("Fill in transport credentials, server_ip/client_ip, subnet, and a 32-byte encryption_key before running server/client.")
		return nil
	},
}
