package cmd

import (
	"context"
	"fmt"

	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/utils"
	"github.com/spf13/cobra"
)

var truncateHeight int64

var truncateCmd = &cobra.Command{
	Use:   "truncate [flags]",
	Short: "Roll the chain back to a height",
	Long: `This command deletes every block above the given height, undoing their
transactions and round effects the same way a fork rollback does.
Examples:
  # Keep blocks up to height 100
  truncate --height 100 -c config/node.ini
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := truncateChain(cmd.Context(), nodeConfigPath, truncateHeight); err != nil {
			logx.Error("TRUNCATE CLI", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(truncateCmd)
	truncateCmd.Flags().Int64Var(&truncateHeight, "height", 1, "height of the block to keep as the new tip")
}

func truncateChain(ctx context.Context, path string, height int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if height < 1 {
		return fmt.Errorf("height must be at least 1, got %d", height)
	}
	n, err := openNode(ctx, path, utils.SystemClock{})
	if err != nil {
		return err
	}
	defer n.Close()

	tip := n.ledger.Height()
	if height >= tip {
		logx.Info("TRUNCATE", fmt.Sprintf("Nothing to do, tip is at height %d", tip))
		return nil
	}
	keep, err := n.stores.Blocks.ByHeight(height)
	if err != nil {
		return err
	}
	if keep == nil {
		return fmt.Errorf("no block at height %d", height)
	}
	logx.Info("TRUNCATE", fmt.Sprintf("Deleting %d blocks above %s", tip-height, keep.ID))
	if err := n.chain.DeleteAfterBlock(ctx, keep.ID); err != nil {
		return err
	}
	logx.Info("TRUNCATE", "New tip at height ", n.ledger.Height())
	return nil
}
