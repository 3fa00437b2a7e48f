package sqlite

import (
	"fmt"
	"strings"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/repository"
	"github.com/roach88/tessera/internal/value"
)

// columnType returns the SQLite type of a field.
func columnType(kind value.Kind) string {
	switch kind {
	case value.KindInt, value.KindBool:
		return "INTEGER"
	case value.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// encodeColumn converts a property value into a statement argument.
func encodeColumn(v value.Value) (any, error) {
	switch val := v.(type) {
	case nil, value.Null:
		return nil, nil
	case value.String:
		return string(val), nil
	case value.Int:
		return int64(val), nil
	case value.Float:
		return float64(val), nil
	case value.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case value.Array, value.Object:
		data, err := value.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// decodeColumn converts a scanned column into a property value. SQL NULL
// decodes to nil, meaning the field is absent.
func decodeColumn(f model.FieldInfo, raw any) (value.Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Kind {
	case value.KindString:
		switch r := raw.(type) {
		case string:
			return value.String(r), nil
		case []byte:
			return value.String(r), nil
		}
	case value.KindInt:
		if r, ok := raw.(int64); ok {
			return value.Int(r), nil
		}
	case value.KindFloat:
		switch r := raw.(type) {
		case float64:
			return value.Float(r), nil
		case int64:
			return value.Float(r), nil
		}
	case value.KindBool:
		if r, ok := raw.(int64); ok {
			return value.Bool(r != 0), nil
		}
	case value.KindArray, value.KindObject:
		var text []byte
		switch r := raw.(type) {
		case string:
			text = []byte(r)
		case []byte:
			text = r
		default:
			return nil, fmt.Errorf("field %q: expected JSON text, got %T", f.Name, raw)
		}
		v, err := value.UnmarshalJSON(text)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if value.KindOf(v) != f.Kind {
			return nil, fmt.Errorf("field %q: expected %s, got %s", f.Name, f.Kind, value.KindOf(v))
		}
		return v, nil
	}
	return nil, fmt.Errorf("field %q: cannot decode %T as %s", f.Name, raw, f.Kind)
}

// createCollection returns the DDL of a collection table.
func createCollection(s *repository.CollectionSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid TEXT PRIMARY KEY", quoteIdent(s.Table))
	for _, f := range s.Info.Fields {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdent(f.Name), columnType(f.Kind))
		if !f.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// createRelation returns the DDL of a relation table.
func createRelation(s *repository.RelationSchema) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	parent_id TEXT NOT NULL,
	child_id TEXT NOT NULL,
	PRIMARY KEY (parent_id, child_id)
)`, quoteIdent(s.Table))
}

// createChildIndex indexes a relation by child for backward lookups.
func createChildIndex(s *repository.RelationSchema) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (child_id)",
		quoteIdent("idx_"+s.Table+"_child"), quoteIdent(s.Table))
}

// SchemaMigration returns a migration creating the tables of every member
// of the shards.
func SchemaMigration(version int, name string, shards ...*model.ShardInfo) repository.Migration {
	m := repository.Migration{Version: version, Name: name}
	for _, info := range shards {
		s := repository.NewShardSchema(info)
		for _, c := range s.Collections {
			m.Script = append(m.Script, createCollection(c))
		}
		for _, r := range s.Relations {
			m.Script = append(m.Script, createRelation(r), createChildIndex(r))
		}
	}
	return m
}
