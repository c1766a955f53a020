// Package documentscmder provides the documents command for listing stored
// documents.
package documentscmder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/docstore"
	"github.com/papercomputeco/reels/pkg/document"
	"github.com/papercomputeco/reels/pkg/logger"
	"github.com/papercomputeco/reels/pkg/utils"
)

const documentsLongDesc string = `List stored documents.

With --index, pages through one index in insertion order. Without it, pages
across every index at once, splitting the page proportionally so one large
index cannot crowd the others out.

Examples:
  reels documents --index notes
  reels documents --index notes --offset 20 --limit 10
  reels documents
  reels documents --filter topic=infra`

const documentsShortDesc string = "List stored documents"

type documentsCommander struct {
	index      string
	offset     int
	limit      int
	maxTextLen int
	filters    []string

	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewDocumentsCmd() *cobra.Command {
	cmder := &documentsCommander{}

	cmd := &cobra.Command{
		Use:   "documents",
		Short: documentsShortDesc,
		Long:  documentsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.index, "index", "i", "", "Index to list (all indexes when omitted)")
	cmd.Flags().IntVar(&cmder.offset, "offset", 0, "Number of documents to skip")
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Maximum documents to return (0 for all)")
	cmd.Flags().IntVar(&cmder.maxTextLen, "max-text-len", 120, "Truncate document text to this length (0 for full text)")
	cmd.Flags().StringArrayVarP(&cmder.filters, "filter", "f", nil, "Metadata filter key=value pair (repeatable)")

	return cmd
}

func (c *documentsCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	filter, err := utils.ParseKeyValues(c.filters)
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

	req := docstore.ListRequest{
		Offset:     c.offset,
		Limit:      c.limit,
		MaxTextLen: c.maxTextLen,
		Filter:     filter,
	}

	if c.index != "" {
		docs, err := eng.ListDocuments(ctx, c.index, req)
		if err != nil {
			return err
		}
		c.printIndex(c.index, docs)
		return nil
	}

	byIndex, err := eng.ListAllDocuments(ctx, req)
	if err != nil {
		return err
	}
	if len(byIndex) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	names := make([]string, 0, len(byIndex))
	for name := range byIndex {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.printIndex(name, byIndex[name])
	}
	return nil
}

func (c *documentsCommander) printIndex(name string, docs []document.StoredDocument) {
	fmt.Printf("\n%s %s %s\n\n",
		cliui.HeaderStyle.Render("Index:"),
		cliui.NameStyle.Render(name),
		cliui.DimStyle.Render(fmt.Sprintf("(%d documents)", len(docs))),
	)

	for _, doc := range docs {
		text := strings.ReplaceAll(doc.Text, "\n", " ")
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render(doc.DocID[:12]),
			cliui.ValueStyle.Render(text),
		)
		if path, ok := doc.Metadata["path"]; ok {
			fmt.Printf("  %s\n", cliui.DimStyle.Render(path))
		}
	}
	fmt.Println()
}
