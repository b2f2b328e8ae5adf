// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with SHARDQUERY, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("SHARDQUERY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/shardquery", "$HOME/.shardquery", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// a missing config file is fine, flags and env still apply
	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:   "shardquery",
		Short: "A secure query engine over sharded, field-indexed record stores",
		Long: `A secure query engine over sharded, field-indexed record stores.

Queries are boolean predicates over record fields. The planner drives the cheapest
indexed terms from the field index, the remaining terms are checked against the
reassembled records, and every value is filtered through the caller's authorizations.`,
		SilenceUsage: true,
	}
}
