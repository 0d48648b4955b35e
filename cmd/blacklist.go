package cmd

import (
	"fmt"
	"sort"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/mempool"
	"github.com/spf13/cobra"
)

var (
	blAddr   string
	blReason string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the senders the transaction pool refuses",
	Long:  "Edits blacklist.json in the node data directory. A running node reads it on start.",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add address to blacklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ids.IsAddress(blAddr) {
			return fmt.Errorf("--address must be a valid address, got %q", blAddr)
		}
		return editBlacklist(func(banned map[string]string) { banned[blAddr] = blReason })
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove address from blacklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if blAddr == "" {
			return fmt.Errorf("--address is required")
		}
		return editBlacklist(func(banned map[string]string) { delete(banned, blAddr) })
	},
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklisted addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := blacklistManager()
		if err != nil {
			return err
		}
		banned, err := bm.LoadBlacklistFromFile()
		if err != nil {
			return err
		}
		if len(banned) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
			return nil
		}
		addrs := make([]string, 0, len(banned))
		for addr := range banned {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", addr, banned[addr])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blacklistCmd)
	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistListCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
	blacklistAddCmd.Flags().StringVar(&blAddr, "address", "", "address to blacklist")
	blacklistAddCmd.Flags().StringVar(&blReason, "reason", "manual", "reason for blacklisting")
	blacklistRemoveCmd.Flags().StringVar(&blAddr, "address", "", "address to remove from blacklist")
}

func blacklistManager() (*mempool.BlacklistManager, error) {
	nodeCfg, err := config.LoadNodeConfig(nodeConfigPath)
	if err != nil {
		return nil, err
	}
	return mempool.NewBlacklistManager(nodeCfg.DataDir), nil
}

func editBlacklist(edit func(banned map[string]string)) error {
	bm, err := blacklistManager()
	if err != nil {
		return err
	}
	banned, err := bm.LoadBlacklistFromFile()
	if err != nil {
		return err
	}
	edit(banned)
	if err := bm.SaveBlacklistToFile(banned); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}
