// Package updatecmder provides the update command for re-syncing documents.
package updatecmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/engine"
	"github.com/papercomputeco/reels/pkg/logger"
	"github.com/papercomputeco/reels/pkg/utils"
)

const updateLongDesc string = `Update already-indexed documents in place.

Each argument pairs a stored document id with the file holding its new
content. A document whose text and metadata are unchanged is left alone; a
changed one has its chunks re-embedded and swapped, and a text change moves
the document to the id of its new content. Ids never indexed are reported,
not created; use "reels index" for those.

Examples:
  reels update 4f2a...=./docs/intro.md --index notes
  reels update 4f2a...=./docs/intro.md --index notes --metadata reviewed=true`

const updateShortDesc string = "Update indexed documents"

type updateCommander struct {
	index    string
	metadata []string

	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewUpdateCmd() *cobra.Command {
	cmder := &updateCommander{}

	cmd := &cobra.Command{
		Use:   "update <doc-id>=<file> ...",
		Short: updateShortDesc,
		Long:  updateLongDesc,
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
	cmd.Flags().StringArrayVarP(&cmder.metadata, "metadata", "m", nil, "Metadata key=value pair (repeatable)")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func (c *updateCommander) run(ctx context.Context, args []string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	shared, err := utils.ParseKeyValues(c.metadata)
	if err != nil {
		return err
	}

	items := make([]engine.UpdateItem, 0, len(args))
	for _, arg := range args {
		docID, path, ok := strings.Cut(arg, "=")
		if !ok || docID == "" || path == "" {
			return fmt.Errorf("expected <doc-id>=<file>, got %q", arg)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		metadata := map[string]string{"path": path}
		for k, v := range shared {
			metadata[k] = v
		}

		items = append(items, engine.UpdateItem{
			DocID: docID,
			Document: document.Document{
				Text:     string(data),
				Metadata: metadata,
			},
		})
	}

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
	var result engine.UpdateResult
	var updateErr error
	_ = cliui.Step(os.Stdout, fmt.Sprintf("Updating %d documents in %q", len(items), c.index), func() error {
		result, updateErr = eng.Update(ctx, c.index, items)
		return updateErr
	})

	fmt.Printf("\n  %s Updated %s documents %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(fmt.Sprintf("%d", len(result.Updated))),
		cliui.DimStyle.Render(fmt.Sprintf("(%d unchanged, %d not found, %d failed)",
			len(result.Unchanged), len(result.NotFound), len(result.Failed))),
	)

	for _, docID := range result.NotFound {
		fmt.Printf("  %s  %s %s\n",
			cliui.FailMark,
			cliui.DimStyle.Render(utils.Truncate(docID, 12)),
			cliui.DimStyle.Render("not indexed; use reels index"),
		)
	}
	if len(result.NotFound) > 0 {
		fmt.Println()
	}

	return updateErr
}
