// Package load contains the command that ingests records into a datastore.
package load

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/cmd/util"
	"github.com/shardquery/shardquery/pkg/metadata"
)

const (
	recordsFlag     = "records"
	shardPrefixFlag = "shard-prefix"
	shardsFlag      = "shards"
)

func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Ingest records into the datastore",
		Long: `Ingest records into the datastore.

Each record is written as field index entries for its indexed fields and event
entries for the rest, spread over the shards prefix_0 to prefix_n-1 by uid. With a
sql datastore the field dictionary is stored alongside the records, so later
queries can be planned without a dictionary file.`,
		RunE: runLoad,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(recordsFlag, "", "(required) a YAML or JSON file holding the records to ingest")
	flags.String(shardPrefixFlag, time.Now().UTC().Format("20060102"), "the prefix of the shard names")
	flags.Int(shardsFlag, 1, "the number of shards to spread the records over")
	_ = cmd.MarkFlagRequired(recordsFlag)

	var bindings []util.ConfigFlag
	bindings = append(bindings, util.AddDatastoreFlags(flags)...)
	bindings = append(bindings, util.AddDictionaryFlags(flags)...)
	bindings = append(bindings, util.AddObservabilityFlags(flags)...)
	util.BindOnPreRun(cmd, bindings)

	return cmd
}

func runLoad(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}
	l, err := util.BuildLogger(cfg)
	if err != nil {
		return err
	}

	recordsFile, _ := cmd.Flags().GetString(recordsFlag)
	prefix, _ := cmd.Flags().GetString(shardPrefixFlag)
	shards, _ := cmd.Flags().GetInt(shardsFlag)
	if shards < 1 {
		return fmt.Errorf("--%s must be at least 1", shardsFlag)
	}

	store, err := util.OpenDatastore(cfg, l)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Datastore.Engine == "memory" {
		l.Warn("records written to the `memory` datastore are lost when the command ends")
	}

	if ds, ok := store.(util.DictionaryStore); ok && cfg.Dictionary.File != "" {
		p, err := metadata.LoadFile(cfg.Dictionary.File)
		if err != nil {
			return err
		}
		if err := util.WriteDictionary(ctx, ds, p, l); err != nil {
			return err
		}
	}

	provider, closeProvider, err := util.OpenDictionary(cfg, store)
	if err != nil {
		return err
	}
	defer closeProvider()

	snapshot, err := provider.Load(ctx, nil)
	if err != nil {
		return fmt.Errorf("load field dictionary: %w", err)
	}

	n, err := util.LoadRecordsFile(ctx, store, snapshot, recordsFile, prefix, shards)
	if err != nil {
		return err
	}

	l.Info("load done", zap.Int("records", n), zap.String("shard_prefix", prefix), zap.Int("shards", shards))
	util.DumpMetrics(cfg, cmd.ErrOrStderr(), l)
	return nil
}
