// Package indexcmder provides the index command for ingesting documents.
package indexcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/chunk"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/engine"
	"github.com/papercomputeco/reels/pkg/logger"
	"github.com/papercomputeco/reels/pkg/utils"
)

const indexLongDesc string = `Ingest documents into a named index.

Each file becomes one document. The document id is the content hash of the
file's text, so re-indexing unchanged files is a no-op. The index is created
on first write.

Metadata pairs are attached to every document in the batch. The reserved
split_type=code pair switches to language-aware chunking and requires
--language.

Examples:
  reels index ./docs/intro.md --index notes
  reels index ./docs/*.md --index notes --metadata topic=docs
  reels index ./pkg/engine/engine.go --index code --split-type code --language go`

const indexShortDesc string = "Ingest documents into an index"

type indexCommander struct {
	index     string
	metadata  []string
	splitType string
	language  string

	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewIndexCmd() *cobra.Command {
	cmder := &indexCommander{}

	cmd := &cobra.Command{
		Use:   "index <files...>",
		Short: indexShortDesc,
		Long:  indexLongDesc,
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
	cmd.Flags().StringVar(&cmder.splitType, "split-type", "", "Chunking strategy (\"code\" for language-aware splitting)")
	cmd.Flags().StringVar(&cmder.language, "language", "", "Programming language for code splitting")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func (c *indexCommander) run(ctx context.Context, paths []string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	docs, err := c.loadDocuments(paths)
	if err != nil {
		return err
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

	var results []engine.IndexResult
	if err := cliui.Step(os.Stdout, fmt.Sprintf("Indexing %d documents into %q", len(docs), c.index), func() error {
		var indexErr error
		results, indexErr = eng.Index(ctx, c.index, docs)
		return indexErr
	}); err != nil {
		return err
	}

	created, skipped := 0, 0
	for _, result := range results {
		if result.Created {
			created++
		} else {
			skipped++
		}
	}

	fmt.Printf("\n  %s Indexed %s new documents %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(fmt.Sprintf("%d", created)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d already present)", skipped)),
	)

	for i, result := range results {
		fmt.Printf("  %s  %s  %s\n",
			cliui.Mark(nil),
			cliui.ValueStyle.Render(paths[i]),
			cliui.DimStyle.Render(fmt.Sprintf("%s (%d chunks)", result.DocID[:12], result.Nodes)),
		)
	}
	fmt.Println()

	return nil
}

// loadDocuments reads each path into a document carrying the shared metadata
// plus its own path.
func (c *indexCommander) loadDocuments(paths []string) ([]document.Document, error) {
	shared, err := utils.ParseKeyValues(c.metadata)
	if err != nil {
		return nil, err
	}

	if c.splitType == chunk.SplitTypeCode && c.language == "" {
		return nil, fmt.Errorf("--language is required with --split-type code")
	}

	docs := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		metadata := map[string]string{"path": path}
		for k, v := range shared {
			metadata[k] = v
		}
		if c.splitType != "" {
			metadata[chunk.MetadataSplitType] = c.splitType
		}
		if c.language != "" {
			metadata[chunk.MetadataLanguage] = c.language
		}

		docs = append(docs, document.Document{
			Text:     string(data),
			Metadata: metadata,
		})
	}
	return docs, nil
}
