// Package configcmder provides the config command for managing persistent
// mnemo configuration stored in the .mnemo/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent mnemo configuration.

Configuration is stored as config.toml in the .mnemo/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  hierarchy.max_depth,
  extraction.rules_path, extraction.watch_rules, extraction.confidence_threshold,
  search.default_strategy, search.default_limit,
  consolidation.threshold, consolidation.content_policy,
  api.listen, client.api_target,
  events.provider, events.topic

Use subcommands to get, set, or list configuration values:
  mnemo config set <key> <value>    Set a configuration value
  mnemo config get <key>            Get a configuration value
  mnemo config list                 List all configuration values

Examples:
  mnemo config set storage.provider postgres
  mnemo config set consolidation.threshold 0.7
  mnemo config get search.default_strategy
  mnemo config list`

const configShortDesc string = "Manage persistent mnemo configuration"

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
