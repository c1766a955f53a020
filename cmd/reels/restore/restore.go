// Package restorecmder provides the restore command for loading snapshots.
package restorecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/logger"
)

const restoreLongDesc string = `Load index snapshots from the snapshots directory.

With no argument, restores every index listed in the snapshot registry. A
corrupt snapshot is skipped so the remaining indexes still come up.

Examples:
  reels restore
  reels restore notes`

const restoreShortDesc string = "Restore indexes from disk"

type restoreCommander struct {
	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewRestoreCmd() *cobra.Command {
	cmder := &restoreCommander{}

	cmd := &cobra.Command{
		Use:   "restore [index]",
		Short: restoreShortDesc,
		Long:  restoreLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return cmder.run(cmd.Context(), name)
		},
	}

	return cmd
}

func (c *restoreCommander) run(ctx context.Context, name string) error {
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

	if name != "" {
		if err := cliui.Step(os.Stdout, fmt.Sprintf("Restoring index %q", name), func() error {
			return eng.Restore(ctx, name)
		}); err != nil {
			return err
		}
		fmt.Printf("\n  %s Restored index %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(name))
		return nil
	}

	var restored []string
	if err := cliui.Step(os.Stdout, "Restoring all indexes", func() error {
		var restoreErr error
		restored, restoreErr = eng.RestoreAll(ctx)
		return restoreErr
	}); err != nil {
		return err
	}

	if len(restored) == 0 {
		fmt.Println("\n  No snapshots found.")
		return nil
	}

	fmt.Printf("\n  %s Restored %s indexes\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(fmt.Sprintf("%d", len(restored))),
	)
	for _, name := range restored {
		fmt.Printf("  %s\n", cliui.ValueStyle.Render(name))
	}
	fmt.Println()

	return nil
}
