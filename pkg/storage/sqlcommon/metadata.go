package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/shardquery/shardquery/pkg/metadata"
)

const fieldMetadataTable = "field_metadata"

var _ metadata.Provider = (*Datastore)(nil)

// Load see [metadata.Provider].Load. Field definitions are read from the
// field_metadata table.
func (s *Datastore) Load(ctx context.Context, dataTypes []string) (*metadata.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "sqlcommon.Load")
	defer span.End()

	sb := s.dbInfo.stbl.
		Select("data_type", "field_name", "field_type", "indexed", "index_only", "reverse_indexed", "cardinality").
		From(fieldMetadataTable).
		OrderBy("data_type", "field_name")
	if len(dataTypes) > 0 {
		sb = sb.Where(sq.Eq{"data_type": dataTypes})
	}

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, s.dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	found := map[string]struct{}{}
	var fields []metadata.Field
	for rows.Next() {
		var (
			dataType    string
			field       metadata.Field
			cardinality sql.NullInt64
		)
		if err := rows.Scan(&dataType, &field.Name, &field.Type, &field.Indexed, &field.IndexOnly, &field.ReverseIndexed, &cardinality); err != nil {
			return nil, s.dbInfo.HandleSQLError(err)
		}
		if cardinality.Valid {
			n := cardinality.Int64
			field.Cardinality = &n
		}
		found[dataType] = struct{}{}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbInfo.HandleSQLError(err)
	}

	if len(dataTypes) == 0 {
		for dataType := range found {
			dataTypes = append(dataTypes, dataType)
		}
	}
	dataTypes = slices.Clone(dataTypes)
	slices.Sort(dataTypes)
	for _, dataType := range dataTypes {
		if _, ok := found[dataType]; !ok {
			return nil, fmt.Errorf("%w: '%s'", metadata.ErrUnknownDataType, dataType)
		}
	}
	return metadata.NewSnapshot(dataTypes, fields...), nil
}

// WriteFields upserts the field definitions of dataType.
func (s *Datastore) WriteFields(ctx context.Context, dataType string, fields []metadata.Field) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.WriteFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ib := s.dbInfo.stbl.
		Insert(fieldMetadataTable).
		Columns("data_type", "field_name", "field_type", "indexed", "index_only", "reverse_indexed", "cardinality").
		Suffix(s.dbInfo.dialect.UpsertFields)
	for _, f := range fields {
		var cardinality sql.NullInt64
		if f.Cardinality != nil {
			cardinality = sql.NullInt64{Int64: *f.Cardinality, Valid: true}
		}
		ib = ib.Values(dataType, f.Name, f.Type, f.Indexed, f.IndexOnly, f.ReverseIndexed, cardinality)
	}

	if _, err := ib.ExecContext(ctx); err != nil {
		return s.dbInfo.HandleSQLError(err)
	}
	return nil
}
