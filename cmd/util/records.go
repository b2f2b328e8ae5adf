package util

import (
	"context"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/ingest"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
)

// LoadRecordsFile ingests the YAML or JSON records of path into n shards
// named prefix_0 to prefix_n-1 and returns the number of records written.
func LoadRecordsFile(ctx context.Context, w storage.Writer, snapshot *metadata.Snapshot, path, prefix string, n int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read records file: %w", err)
	}
	records, err := ingest.DecodeRecords(data)
	if err != nil {
		return 0, err
	}
	if err := ingest.LoadSharded(ctx, w, snapshot, prefix, n, records...); err != nil {
		return 0, err
	}
	return len(records), nil
}

// WriteDictionary stores the fields of every record type of p in the
// metadata table of store.
func WriteDictionary(ctx context.Context, store DictionaryStore, p *metadata.StaticProvider, l logger.Logger) error {
	dictionary := p.Dictionary()
	dataTypes := make([]string, 0, len(dictionary))
	for dataType := range dictionary {
		dataTypes = append(dataTypes, dataType)
	}
	slices.Sort(dataTypes)

	for _, dataType := range dataTypes {
		if err := store.WriteFields(ctx, dataType, dictionary[dataType]); err != nil {
			return fmt.Errorf("write fields of '%s': %w", dataType, err)
		}
		l.Debug("wrote field dictionary", zap.String("data_type", dataType), zap.Int("fields", len(dictionary[dataType])))
	}
	return nil
}
