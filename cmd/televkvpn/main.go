// Command televkvpn runs a televkvpn tunnel endpoint: a layer-2/3 VPN
// carried as file attachments over Telegram or VKontakte messaging, so
// traffic rides the carrier's own TLS session instead of opening a port of
// its own.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
