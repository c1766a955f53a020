// Package querycmder provides the query command for hybrid retrieval.
package querycmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/reels/cmd/reels/setup"
	"github.com/papercomputeco/reels/pkg/cliui"
	"github.com/papercomputeco/reels/pkg/engine"
	"github.com/papercomputeco/reels/pkg/logger"
	"github.com/papercomputeco/reels/pkg/utils"
)

const queryLongDesc string = `Retrieve the most relevant chunks for a query.

Runs hybrid retrieval over the named index: vector similarity and BM25
keyword scores are fused into one ranking, then the results are trimmed to
fit the model's context window.

Metadata filters restrict results to chunks whose document metadata matches
every given pair.

Examples:
  reels query "how do I configure logging" --index notes
  reels query "worker pool shutdown" --index code --top 3
  reels query "kafka setup" --index notes --filter topic=infra
  reels query "kafka setup" --index notes --render`

const queryShortDesc string = "Retrieve relevant chunks for a query"

type queryCommander struct {
	query         string
	index         string
	topK          int
	maxTokens     int
	contextWindow int
	filters       []string
	render        bool

	configDir string
	debug     bool
	logger    *zap.Logger
}

func NewQueryCmd() *cobra.Command {
	cmder := &queryCommander{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: queryShortDesc,
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.index, "index", "i", "", "Name of the index to query (required)")
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 0, "Number of results to return")
	cmd.Flags().IntVar(&cmder.maxTokens, "max-tokens", 0, "Response token budget to reserve")
	cmd.Flags().IntVar(&cmder.contextWindow, "context-window", 0, "Override the model context window")
	cmd.Flags().StringArrayVarP(&cmder.filters, "filter", "f", nil, "Metadata filter key=value pair (repeatable)")
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render result text as markdown")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

func (c *queryCommander) run(ctx context.Context) error {
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
	maxResults := c.topK
	if maxResults <= 0 {
		maxResults = cfg.Retrieval.MaxResults
	}

	eng, err := setup.BuildEngine(cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	results, err := eng.Retrieve(ctx, c.index, c.query, engine.RetrieveOptions{
		MaxResults:    maxResults,
		ContextWindow: c.contextWindow,
		MaxTokens:     c.maxTokens,
		Filter:        filter,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		cliui.HeaderStyle.Render("Results for:"),
		cliui.KeyStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, result := range results {
		fmt.Printf("  %s  %s  %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
			cliui.DimStyle.Render(result.DocID[:12]),
		)

		text := result.Text
		if c.render {
			if rendered, renderErr := cliui.RenderMarkdown(text); renderErr == nil {
				text = strings.TrimRight(rendered, "\n")
			}
			fmt.Printf("%s\n", text)
		} else {
			preview := strings.ReplaceAll(utils.Truncate(text, 200), "\n", " ")
			fmt.Printf("  %s\n", cliui.ValueStyle.Render(preview))
		}

		if path, ok := result.Metadata["path"]; ok {
			fmt.Printf("  %s\n", cliui.DimStyle.Render(path))
		}
		fmt.Println()
	}

	return nil
}
