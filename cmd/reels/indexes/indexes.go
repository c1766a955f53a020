// Package indexescmder provides the indexes command for listing and deleting
// indexes.
package indexescmder

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

const indexesLongDesc string = `List the indexes known to the vector backend.

Server-resident backends report indexes created by earlier runs or other
processes, not just this machine's.

Examples:
  reels indexes
  reels indexes delete notes`

const indexesShortDesc string = "List indexes"

type indexesCommander struct {
	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewIndexesCmd() *cobra.Command {
	cmder := &indexesCommander{}

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: indexesShortDesc,
		Long:  indexesLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.runList(cmd.Context())
		},
	}

	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmder := &indexesCommander{}

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an index",
		Long:  "Delete an index, its documents, and its snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.runDelete(cmd.Context(), args[0])
		},
	}

	return cmd
}

func (c *indexesCommander) runList(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	eng, err := c.buildEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	names, err := eng.ListIndexes(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Println("No indexes found.")
		return nil
	}

	fmt.Printf("\n%s\n\n", cliui.HeaderStyle.Render("Indexes:"))
	for _, name := range names {
		fmt.Printf("  %s\n", cliui.NameStyle.Render(name))
	}
	fmt.Println()

	return nil
}

func (c *indexesCommander) runDelete(ctx context.Context, name string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	eng, err := c.buildEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if err := cliui.Step(os.Stdout, fmt.Sprintf("Deleting index %q", name), func() error {
		return eng.DeleteIndex(ctx, name)
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Deleted index %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(name))
	return nil
}

func (c *indexesCommander) buildEngine() (*engine.Engine, error) {
	cfg, err := setup.LoadConfig(c.configDir)
	if err != nil {
		return nil, err
	}
	return setup.BuildEngine(cfg, c.configDir, c.logger)
}
