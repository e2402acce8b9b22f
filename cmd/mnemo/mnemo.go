// Package mnemocmder
package mnemocmder

import (
	"github.com/spf13/cobra"

	categoriescmder "github.com/papercomputeco/mnemo/cmd/mnemo/categories"
	configcmder "github.com/papercomputeco/mnemo/cmd/mnemo/config"
	consolidatecmder "github.com/papercomputeco/mnemo/cmd/mnemo/consolidate"
	searchcmder "github.com/papercomputeco/mnemo/cmd/mnemo/search"
	servecmder "github.com/papercomputeco/mnemo/cmd/mnemo/serve"
	versioncmder "github.com/papercomputeco/mnemo/cmd/version"
)

const mnemoLongDesc string = `Mnemo is a memory retrieval and curation engine for your agents.

Run the service using:
  mnemo serve          Run the API server

Query and curate memories:
  mnemo search         Search stored memories
  mnemo categories     Manage the category hierarchy
  mnemo consolidate    Detect and merge duplicate memories`

const mnemoShortDesc string = "Mnemo - Agent Memory Curation"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemo",
		Short: mnemoShortDesc,
		Long:  mnemoLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .mnemo/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(categoriescmder.NewCategoriesCmd())
	cmd.AddCommand(consolidatecmder.NewConsolidateCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
