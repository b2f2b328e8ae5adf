// Package query contains the command that runs a query against a datastore.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/cmd/util"
	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/executor"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/planner"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/visibility"
)

const (
	queryFlag           = "query"
	queryFileFlag       = "query-file"
	authsFlag           = "auths"
	authorizationsFlag  = "authorizations"
	shardStartFlag      = "shard-start"
	shardEndFlag        = "shard-end"
	dataTypesFlag       = "datatypes"
	limitFlag           = "limit"
	resumeShardFlag     = "resume-shard"
	resumeKeyFlag       = "resume-key"
	seedRecordsFlag     = "seed-records"
	seedShardPrefixFlag = "seed-shard-prefix"
	seedShardsFlag      = "seed-shards"
)

var ErrIncomplete = errors.New("query incomplete")

func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query and print the matching documents",
		Long: `Run a query and print the matching documents as JSON lines.

The query is a JSON or YAML predicate tree, for example:

  {"op": "and", "children": [
    {"op": "eq", "field": "HOST", "value": "web-01"},
    {"op": "regex", "field": "BODY", "pattern": "hel.*"}]}

Only values visible to every entity of the --auths delegation chain are returned.
Shard failures do not abort the query: the remaining shards still run and the
command exits with an error once all documents were printed.`,
		RunE: runQuery,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(queryFlag, "", "the query as a JSON or YAML document")
	flags.String(queryFileFlag, "", "a file holding the query")
	flags.String(authsFlag, "", "(required) the delegation chain, requesting entity first (e.g. 'user=A,B;proxy=A')")
	flags.StringSlice(authorizationsFlag, nil, "downgrade the requesting entity to these labels")
	flags.String(shardStartFlag, "", "the first shard to scan (inclusive)")
	flags.String(shardEndFlag, "", "the last shard to scan (inclusive)")
	flags.StringSlice(dataTypesFlag, nil, "restrict results to these record types")
	flags.Int(limitFlag, 0, "the maximum number of documents to return (0 means no limit)")
	flags.String(resumeShardFlag, "", "resume after a previous query: the shard it stopped in")
	flags.String(resumeKeyFlag, "", "resume after a previous query: the last document it returned, as 'datatype/uid'")
	flags.String(seedRecordsFlag, "", "ingest the records of this file before querying (for the 'memory' engine)")
	flags.String(seedShardPrefixFlag, "seed", "the shard prefix of seeded records")
	flags.Int(seedShardsFlag, 1, "the number of shards seeded records are spread over")
	cmd.MarkFlagsOneRequired(queryFlag, queryFileFlag)
	cmd.MarkFlagsMutuallyExclusive(queryFlag, queryFileFlag)
	_ = cmd.MarkFlagRequired(authsFlag)

	var bindings []util.ConfigFlag
	bindings = append(bindings, util.AddDatastoreFlags(flags)...)
	bindings = append(bindings, util.AddDictionaryFlags(flags)...)
	bindings = append(bindings, util.AddPlannerFlags(flags)...)
	bindings = append(bindings, util.AddExecutorFlags(flags)...)
	bindings = append(bindings, util.AddObservabilityFlags(flags)...)
	util.BindOnPreRun(cmd, bindings)

	return cmd
}

// ParseResumeKey parses a 'datatype/uid' resume key.
func ParseResumeKey(shard, key string) (*executor.ResumeKey, error) {
	if shard == "" && key == "" {
		return nil, nil
	}
	if shard == "" {
		return nil, fmt.Errorf("--%s requires --%s", resumeKeyFlag, resumeShardFlag)
	}
	resume := &executor.ResumeKey{Shard: shard}
	if key == "" {
		return resume, nil
	}
	dataType, id, ok := strings.Cut(key, "/")
	if !ok {
		return nil, fmt.Errorf("invalid resume key '%s': expected datatype/uid", key)
	}
	if err := keys.Validate(dataType, id); err != nil {
		return nil, fmt.Errorf("invalid resume key '%s': %w", key, err)
	}
	resume.Key = keys.NewDocKey(dataType, id)
	return resume, nil
}

func readQuery(cmd *cobra.Command) (ast.Node, error) {
	data, _ := cmd.Flags().GetString(queryFlag)
	if path, _ := cmd.Flags().GetString(queryFileFlag); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
		data = string(b)
	}
	return ast.Decode([]byte(data))
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}
	l, err := util.BuildLogger(cfg)
	if err != nil {
		return err
	}
	shutdownTracing, err := util.SetupTracing(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(); err != nil {
			l.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	query, err := readQuery(cmd)
	if err != nil {
		return err
	}
	auths, _ := flags.GetString(authsFlag)
	chain, err := visibility.ParseChain(auths)
	if err != nil {
		return err
	}
	var authorizations []string
	if flags.Changed(authorizationsFlag) {
		authorizations, _ = flags.GetStringSlice(authorizationsFlag)
		if authorizations == nil {
			authorizations = []string{}
		}
	}
	resumeShard, _ := flags.GetString(resumeShardFlag)
	resumeKey, _ := flags.GetString(resumeKeyFlag)
	resume, err := ParseResumeKey(resumeShard, resumeKey)
	if err != nil {
		return err
	}
	dataTypes, _ := flags.GetStringSlice(dataTypesFlag)
	limit, _ := flags.GetInt(limitFlag)
	shardStart, _ := flags.GetString(shardStartFlag)
	shardEnd, _ := flags.GetString(shardEndFlag)

	store, err := util.OpenDatastore(cfg, l)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, closeProvider, err := util.OpenDictionary(cfg, store)
	if err != nil {
		return err
	}
	defer closeProvider()

	if seed, _ := flags.GetString(seedRecordsFlag); seed != "" {
		prefix, _ := flags.GetString(seedShardPrefixFlag)
		n, _ := flags.GetInt(seedShardsFlag)
		all, err := provider.Load(ctx, nil)
		if err != nil {
			return fmt.Errorf("load field dictionary: %w", err)
		}
		count, err := util.LoadRecordsFile(ctx, store, all, seed, prefix, n)
		if err != nil {
			return err
		}
		l.Debug("seeded records", zap.Int("records", count))
	}

	snapshot, err := provider.Load(ctx, dataTypes)
	if err != nil {
		return fmt.Errorf("load field dictionary: %w", err)
	}

	reader := util.QueryReader(cfg, store, l)
	p := planner.New(append(cfg.PlannerOptions(), planner.WithLogger(l))...)
	exec := executor.New(reader, append(cfg.ExecutorOptions(),
		executor.WithLogger(l),
		executor.WithPlanner(p),
	)...)

	plan, err := exec.Plan(query, snapshot)
	if err != nil {
		return err
	}
	l.Debug("planned query", zap.String("plan", plan.String()))

	results, err := exec.Execute(ctx, plan, storage.ShardRange{Start: shardStart, End: shardEnd}, chain, executor.ExecuteOptions{
		ResumeKey:      resume,
		DataTypes:      dataTypes,
		Limit:          limit,
		Authorizations: authorizations,
	})
	if err != nil {
		return err
	}
	defer results.Stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		doc, err := results.Next(ctx)
		if errors.Is(err, storage.ErrIteratorDone) {
			break
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
	}

	for _, w := range results.Warnings() {
		l.Warn("query warning", zap.String("query_id", results.QueryID()), zap.Error(w))
	}

	failed := 0
	for _, r := range results.Reports() {
		fields := []zap.Field{
			zap.String("query_id", results.QueryID()),
			zap.String("shard", r.Shard),
			zap.Stringer("state", r.State),
			zap.Int("emitted", r.Emitted),
		}
		if r.LastKey != "" {
			fields = append(fields, zap.String("last_key", r.LastKey.String()))
		}
		if r.Err != nil {
			failed++
			fields = append(fields, zap.Error(r.Err))
		}
		l.Info("shard report", fields...)
	}

	m := reader.GetMetrics()
	l.Info("query done",
		zap.String("query_id", results.QueryID()),
		zap.Int64("emitted", results.Emitted()),
		zap.Uint32("scans", m.ScanCount),
		zap.Uint32("shard_listings", m.ShardsCount),
	)
	util.DumpMetrics(cfg, cmd.ErrOrStderr(), l)

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d shards failed", ErrIncomplete, failed, len(results.Reports()))
	}
	return nil
}
