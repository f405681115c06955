package main

import (
	"github.com/spf13/cobra"

	"github.com/didierodjou/televkvpn/internal/app"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the server side of the tunnel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole(app.RoleServer)
	},
}
