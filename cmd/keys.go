package cmd

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"github.com/mezonai/dpos/common"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/spf13/cobra"
)

var (
	keysSecret     string
	keysSecretFile string
	keysPublicKey  string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Derive the address and forging key of a secret",
	Long: `Derive the keypair of a passphrase and print:
- the account address
- the public key in hex, as used in the forging config
- the public key in base58`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keysPublicKey != "" {
			pk, err := common.DecodePublicKey(keysPublicKey, ed25519.PublicKeySize)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address:    %s\n", ids.AddressFromPubData(pk))
			return nil
		}
		secret, err := loadSecret()
		if err != nil {
			return err
		}
		kp := crypto.KeypairFromSecret(secret)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "address:    %s\n", ids.AddressFromPubData(kp.PublicKey))
		fmt.Fprintf(out, "public key: %s\n", kp.PublicKeyHex())
		fmt.Fprintf(out, "base58:     %s\n", common.EncodeBytesToBase58(kp.PublicKey))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.Flags().StringVar(&keysSecret, "secret", "", "passphrase to derive the keypair from")
	keysCmd.Flags().StringVar(&keysSecretFile, "secret-file", "", "file holding the passphrase")
	keysCmd.Flags().StringVar(&keysPublicKey, "public-key", "", "public key in hex or base58; prints its address only")
}

func loadSecret() (string, error) {
	if keysSecret != "" {
		return keysSecret, nil
	}
	if keysSecretFile == "" {
		return "", fmt.Errorf("--secret or --secret-file is required")
	}
	b, err := os.ReadFile(strings.TrimSpace(keysSecretFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
