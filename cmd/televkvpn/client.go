package main

import (
	"github.com/spf13/cobra"

	"github.com/didierodjou/televkvpn/internal/app"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the client side of the tunnel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole(app.RoleClient)
	},
}
