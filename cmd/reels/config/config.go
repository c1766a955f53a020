// Package configcmder provides the config command for managing persistent
// reels configuration stored in the .reels/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent reels configuration.

Configuration is stored as config.toml in the .reels/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  engine.context_window, engine.snapshots_dir, engine.auto_persist,
  vector_store.driver,
  qdrant.host, qdrant.port, qdrant.api_key, qdrant.use_tls,
  chroma.target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  retrieval.vector_weight, retrieval.text_weight, retrieval.pool_multiplier,
  retrieval.max_results,
  budget.estimator, budget.chars_per_token, budget.model,
  budget.prompt_overhead, budget.response_reserve,
  chunking.chunk_size, chunking.chunk_overlap,
  events.driver, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  reels config set <key> <value>    Set a configuration value
  reels config get <key>            Get a configuration value
  reels config list                 List all configuration values

Examples:
  reels config set vector_store.driver qdrant
  reels config set embedding.model nomic-embed-text
  reels config get vector_store.driver
  reels config list`

const configShortDesc string = "Manage persistent reels configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
