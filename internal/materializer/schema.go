package materializer

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ColumnKind is the declared type family of a materialized column. Every
// coercion decision keys on the kind, never on runtime value inspection.
type ColumnKind int

const (
	KindVarchar ColumnKind = iota
	KindInt
	KindDouble
	KindBool
	KindDateTime
)

func (k ColumnKind) SQLType() string {
	switch k {
	case KindInt:
		return "INT"
	case KindDouble:
		return "DOUBLE PRECISION"
	case KindBool:
		return "BOOLEAN"
	case KindDateTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR(255)"
	}
}

// IsNumericOrDate reports whether empty inputs should become SQL NULL for
// this kind instead of an empty string.
func (k ColumnKind) IsNumericOrDate() bool {
	switch k {
	case KindInt, KindDouble, KindDateTime:
		return true
	default:
		return false
	}
}

type Column struct {
	Name string
	Kind ColumnKind
}

// InferSchema derives the column set of a new domain table from the first
// row's values. The shape chosen here is permanent: the table is created
// with CREATE TABLE IF NOT EXISTS and never altered afterwards.
func InferSchema(row map[string]any) []Column {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]Column, 0, len(names))
	for _, name := range names {
		columns = append(columns, Column{Name: name, Kind: inferKind(row[name])})
	}
	return columns
}

func inferKind(value any) ColumnKind {
	switch value.(type) {
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindDouble
	case bool:
		return KindBool
	case time.Time:
		return KindDateTime
	case string:
		return KindVarchar
	default:
		return KindVarchar
	}
}

// createTableDDL renders the table definition: the synthetic columns first,
// then the inferred business columns.
func createTableDDL(table string, columns []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("\tid VARCHAR(36) PRIMARY KEY,\n")
	b.WriteString("\tcreated_date TIMESTAMP,\n")
	b.WriteString("\tupdated_date TIMESTAMP,\n")
	b.WriteString("\tis_archived BOOLEAN DEFAULT FALSE")
	for _, col := range columns {
		fmt.Fprintf(&b, ",\n\t%s %s", col.Name, col.Kind.SQLType())
	}
	b.WriteString("\n)")
	return b.String()
}

func archiveTableDDL(domain string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_archive (
	id VARCHAR(36) PRIMARY KEY,
	%s_id TEXT,
	message TEXT,
	archived_at TIMESTAMP
)`, domain, domain)
}

// kindFromDataType classifies an information_schema data_type string into a
// column kind.
func kindFromDataType(dataType string) ColumnKind {
	switch strings.ToLower(dataType) {
	case "integer", "int", "bigint", "smallint":
		return KindInt
	case "double precision", "double", "real", "numeric", "decimal", "float":
		return KindDouble
	case "boolean", "bool":
		return KindBool
	case "timestamp", "timestamp without time zone", "timestamp with time zone", "date", "datetime":
		return KindDateTime
	default:
		return KindVarchar
	}
}
