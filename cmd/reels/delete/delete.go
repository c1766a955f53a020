// Package deletecmder provides the delete command for removing documents.
package deletecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/engine"
	"github.com/papercomputeco/reels/pkg/logger"
)

const deleteLongDesc string = `Delete documents from an index by document id.

Removes each document and all of its chunks. Unknown ids are reported and
the rest of the batch still goes through. Document ids are printed by
"reels index" and "reels documents".

Examples:
  reels delete 3b4c5d6e7f80 --index notes
  reels delete 3b4c5d6e7f80 9a0b1c2d3e4f --index notes`

const deleteShortDesc string = "Delete documents from an index"

type deleteCommander struct {
	index string

	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewDeleteCmd() *cobra.Command {
	cmder := &deleteCommander{}

	cmd := &cobra.Command{
		Use:   "delete <doc-ids...>",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd.Context(), args)
		},
	}

	cmd.Flags().StringVarP(&cmder.index, "index", "i", "", "Name of the target index (required)")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func (c *deleteCommander) run(ctx context.Context, docIDs []string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfg, err := setup.LoadConfig(c.configDir)
	if err != nil {
		return err
	}

	eng, err := setup.BuildEngine(cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	// Partial successes are still reported when some items fail, so the
	// step's error is returned after the summary.
	var result engine.DeleteResult
	var deleteErr error
	_ = cliui.Step(os.Stdout, fmt.Sprintf("Deleting %d documents from %q", len(docIDs), c.index), func() error {
		result, deleteErr = eng.Delete(ctx, c.index, docIDs)
		return deleteErr
	})

	fmt.Printf("\n  %s Deleted %s documents %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(fmt.Sprintf("%d", len(result.Deleted))),
		cliui.DimStyle.Render(fmt.Sprintf("(%d not found, %d failed)",
			len(result.NotFound), len(result.Failed))),
	)

	for _, docID := range result.NotFound {
		fmt.Printf("  %s  %s\n", cliui.FailMark, cliui.DimStyle.Render(docID))
	}
	if len(result.NotFound) > 0 {
		fmt.Println()
	}

	return deleteErr
}
