// Package reelscmder
package reelscmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/reels/cmd/reels/config"
	deletecmder "github.com/papercomputeco/reels/cmd/reels/delete"
	documentscmder "github.com/papercomputeco/reels/cmd/reels/documents"
	indexcmder "github.com/papercomputeco/reels/cmd/reels/index"
	indexescmder "github.com/papercomputeco/reels/cmd/reels/indexes"
	persistcmder "github.com/papercomputeco/reels/cmd/reels/persist"
	querycmder "github.com/papercomputeco/reels/cmd/reels/query"
	restorecmder "github.com/papercomputeco/reels/cmd/reels/restore"
	updatecmder "github.com/papercomputeco/reels/cmd/reels/update"
	versioncmder "github.com/papercomputeco/reels/cmd/version"
)

const reelsLongDesc string = `Reels is retrieval-augmented generation for your documents.

Ingest documents into named indexes, then retrieve the most relevant
chunks for a query using hybrid vector and keyword search:
  reels index ./docs/*.md --index notes
  reels query "how do I configure logging" --index notes
  reels documents --index notes`

const reelsShortDesc string = "Reels - Hybrid Document Retrieval"

func NewReelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reels",
		Short: reelsShortDesc,
		Long:  reelsLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .reels/ directory location")

	// Add subcommands
	cmd.AddCommand(indexcmder.NewIndexCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(updatecmder.NewUpdateCmd())
	cmd.AddCommand(deletecmder.NewDeleteCmd())
	cmd.AddCommand(documentscmder.NewDocumentsCmd())
	cmd.AddCommand(indexescmder.NewIndexesCmd())
	cmd.AddCommand(persistcmder.NewPersistCmd())
	cmd.AddCommand(restorecmder.NewRestoreCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
