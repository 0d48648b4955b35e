package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mezonai/dpos/block"
	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/system"
	"github.com/mezonai/dpos/txtypes"
	"github.com/spf13/cobra"
)

var (
	genesisNetworkPath string
	genesisOut         string
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Build the genesis block from a network config",
	Long: `Build the genesis block described by the genesis section of network.yml:
- funds every allocation and genesis delegate from the genesis account
- registers each delegate and has it vote for itself
- writes the signed block as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return buildGenesisFile(genesisNetworkPath, genesisOut)
	},
}

func init() {
	rootCmd.AddCommand(genesisCmd)
	genesisCmd.Flags().StringVar(&genesisNetworkPath, "network", "config/network.yml", "Path to the network config")
	genesisCmd.Flags().StringVarP(&genesisOut, "out", "o", "data/genesis.json", "Where to write the genesis block")
}

func buildGenesisFile(networkPath, out string) error {
	cfgFile, err := config.LoadNetworkConfig(networkPath)
	if err != nil {
		return err
	}
	// Genesis assets are never read back, so the registry needs no stores here.
	registry, _, err := txtypes.NewDefaultRegistry(txtypes.Deps{
		Fees:                   system.New(cfgFile.Network, nil, false),
		Verifier:               crypto.Ed25519Verifier{},
		MaxVotesPerTransaction: cfgFile.Network.MaxVotesPerTransaction,
		MaxVotesPerAccount:     cfgFile.Network.MaxVotesPerAccount,
	})
	if err != nil {
		return err
	}
	genesis, err := block.BuildGenesis(cfgFile.Genesis, registry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := block.SaveGenesis(out, genesis); err != nil {
		return err
	}
	logx.Info("GENESIS", fmt.Sprintf("Genesis block %s with %d transactions written to %s", genesis.ID, genesis.NumberOfTransactions, out))
	return nil
}
