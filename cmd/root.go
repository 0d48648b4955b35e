package cmd

import (
	"os"

	"github.com/mezonai/dpos/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dpos",
	Short: "DPoS ledger node CLI",
	Long:  "Command line interface for running and managing a delegated proof-of-stake ledger node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
