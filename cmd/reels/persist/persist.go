// Package persistcmder provides the persist command for snapshotting indexes.
package persistcmder

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

const persistLongDesc string = `Write index snapshots to the snapshots directory.

An in-process backend writes its vectors beside the document store; a
server-resident backend already holds its vectors, so only the documents
are written. With no argument, every restored or written index in this run
is persisted.

Examples:
  reels restore && reels persist
  reels persist notes`

const persistShortDesc string = "Snapshot indexes to disk"

type persistCommander struct {
	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewPersistCmd() *cobra.Command {
	cmder := &persistCommander{}

	cmd := &cobra.Command{
		Use:   "persist [index]",
		Short: persistShortDesc,
		Long:  persistLongDesc,
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

func (c *persistCommander) run(ctx context.Context, name string) error {
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

	// A fresh process has no local index state; rediscover so persist sees
	// what the backend holds.
	if _, err := eng.Rediscover(ctx); err != nil {
		return err
	}

	if name != "" {
		if err := cliui.Step(os.Stdout, fmt.Sprintf("Persisting index %q", name), func() error {
			return eng.Persist(ctx, name)
		}); err != nil {
			return err
		}
	} else {
		if err := cliui.Step(os.Stdout, "Persisting all indexes", func() error {
			return eng.PersistAll(ctx)
		}); err != nil {
			return err
		}
	}

	fmt.Printf("\n  %s Snapshots written\n\n", cliui.SuccessMark)
	return nil
}
