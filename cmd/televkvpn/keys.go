package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/didierodjou/televkvpn/internal/config"
	"github.com/didierodjou/televkvpn/internal/identity"
)

var identityPath string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show the pre-shared key fingerprint, or manage an out-of-band operator identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Printf("Pre-shared key fingerprint: %s\n", identity.KeyFingerprint([]byte(cfg.EncryptionKey)))
		fmt.Println("Read this aloud (or paste it) to the operator on the other end; if it doesn't match, your encryption_key values differ.")
		return nil
	},
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new hybrid ML-DSA-87/Ed25519 operator identity keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := identity.Generate()
		if err != nil {
			return fmt.Errorf("generate identity: %w", err)
		}

		text, err := kp.MarshalText()
		if err != nil {
			return fmt.Errorf("marshal identity: %w", err)
		}
		if err := os.WriteFile(identityPath, text, 0600); err != nil {
			return fmt.Errorf("write identity file: %w", err)
		}

		fp, err := identity.Fingerprint(kp.Public())
		if err != nil {
			return fmt.Errorf("fingerprint identity: %w", err)
		}
		fmt.Printf("Identity written to %s\n", identityPath)
		fmt.Printf("Public fingerprint: %s\n", fp)
		return nil
	},
}

func init() {
	keysGenerateCmd.Flags().StringVar(&identityPath, "out", "televkvpn_identity.hex", "path to write the generated identity to")
	keysCmd.AddCommand(keysGenerateCmd)
}
