package load

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/cmd"
	"github.com/shardquery/shardquery/cmd/query"
	"github.com/shardquery/shardquery/cmd/util"
	"github.com/shardquery/shardquery/pkg/storage/migrate"
)

const dictionaryYAML = `dataTypes:
  event:
    - name: HOST
      type: string
      indexed: true
    - name: PORT
      type: number
      indexed: true
`

const recordsYAML = `- dataType: event
  uid: a
  fields:
    HOST: [{value: web-01}]
    PORT: [{value: "80"}]
- dataType: event
  uid: a.1
  fields:
    PORT: [{value: "443", visibility: ops}]
- dataType: event
  uid: b
  fields:
    HOST: [{value: db-01}]
    PORT: [{value: "5432"}]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := cmd.NewRootCommand()
	root.AddCommand(sub)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func migratedSqlite(t *testing.T) string {
	t.Helper()
	uri := "file:" + filepath.Join(t.TempDir(), "shardquery.db")
	require.NoError(t, migrate.RunMigrations(context.Background(), migrate.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
	}))
	return uri
}

func TestLoadCommandDefaultValues(t *testing.T) {
	util.PrepareTempConfigDir(t)
	loadCmd := NewLoadCommand()
	loadCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		require.Equal(t, "memory", viper.GetString("datastore.engine"))
		require.Empty(t, viper.GetString("dictionary.file"))
		shards, err := cmd.Flags().GetInt(shardsFlag)
		require.NoError(t, err)
		require.Equal(t, 1, shards)
		prefix, err := cmd.Flags().GetString(shardPrefixFlag)
		require.NoError(t, err)
		require.Len(t, prefix, len("20060102"))
		return nil
	}

	_, err := execute(t, loadCmd, "load", "--records", "records.yaml")
	require.NoError(t, err)
}

func TestLoadCommandRequiresRecords(t *testing.T) {
	util.PrepareTempConfigDir(t)
	_, err := execute(t, NewLoadCommand(), "load")
	require.Error(t, err)
}

func TestLoadCommandMemory(t *testing.T) {
	util.PrepareTempConfigDir(t)
	_, err := execute(t, NewLoadCommand(), "load",
		"--records", writeFile(t, "records.yaml", recordsYAML),
		"--dictionary-file", writeFile(t, "dictionary.yaml", dictionaryYAML),
		"--log-level", "none",
	)
	require.NoError(t, err)
}

func TestLoadCommandRejectsZeroShards(t *testing.T) {
	util.PrepareTempConfigDir(t)
	_, err := execute(t, NewLoadCommand(), "load",
		"--records", writeFile(t, "records.yaml", recordsYAML),
		"--dictionary-file", writeFile(t, "dictionary.yaml", dictionaryYAML),
		"--shards", "0",
		"--log-level", "none",
	)
	require.EqualError(t, err, "--shards must be at least 1")
}

func TestLoadThenQuerySqlite(t *testing.T) {
	util.PrepareTempConfigDir(t)
	uri := migratedSqlite(t)

	_, err := execute(t, NewLoadCommand(), "load",
		"--datastore-engine", "sqlite",
		"--datastore-uri", uri,
		"--records", writeFile(t, "records.yaml", recordsYAML),
		"--dictionary-file", writeFile(t, "dictionary.yaml", dictionaryYAML),
		"--shard-prefix", "20240101",
		"--shards", "3",
		"--log-level", "none",
	)
	require.NoError(t, err)

	// the dictionary now comes from the metadata table
	out, err := execute(t, query.NewQueryCommand(), "query",
		"--datastore-engine", "sqlite",
		"--datastore-uri", uri,
		"--query", `{"op": "range", "field": "PORT", "lower": {"value": "80", "inclusive": true}, "upper": {"value": "1000", "inclusive": true}}`,
		"--auths", "user=ops",
		"--log-level", "none",
	)
	require.NoError(t, err)

	var uids []string
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for {
		var doc struct {
			UID string `json:"uid"`
		}
		if derr := dec.Decode(&doc); errors.Is(derr, io.EOF) {
			break
		} else {
			require.NoError(t, derr)
		}
		uids = append(uids, doc.UID)
	}
	require.ElementsMatch(t, []string{"a", "a.1"}, uids)
}
