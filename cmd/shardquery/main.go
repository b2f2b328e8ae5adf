package main

import (
	"os"

	"github.com/shardquery/shardquery/cmd"
	"github.com/shardquery/shardquery/cmd/load"
	"github.com/shardquery/shardquery/cmd/migrate"
	"github.com/shardquery/shardquery/cmd/query"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(query.NewQueryCommand())
	rootCmd.AddCommand(load.NewLoadCommand())
	rootCmd.AddCommand(migrate.NewMigrateCommand())
	rootCmd.AddCommand(cmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
