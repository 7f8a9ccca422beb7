// Package preserve writes canonical rows into relational tables.
//
// Rows are buffered per table in a Batch and written on Flush, one upsert per
// row, inside a single transaction: either every row of a flush is visible
// afterwards or none is. Tables holding fully replaceable reference data set
// Upsert to false and are cleared inside the same transaction first.
package preserve

import (
	"fmt"
	"slices"
)

// ColumnType is the semantic type a raw value is coerced to.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Timestamp
	Decimal
	Bool
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Timestamp:
		return "timestamp"
	case Decimal:
		return "decimal"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column maps one document field onto one table column.
type Column struct {
	Name    string     // Database column name
	Field   string     // Document field name (defaults to Name)
	Type    ColumnType // Coercion applied to the raw value
	Default any        // Used when the field is absent; nil means omit
}

func (c Column) field() string {
	if c.Field != "" {
		return c.Field
	}
	return c.Name
}

// Table describes a target table.
type Table struct {
	Name    string
	Columns []Column
	// Keys are the columns of the table's unique key.
	Keys []string
	// Upsert selects per-row insert-or-update. When false the rows in
	// ReplaceScope are deleted before the batch is written.
	Upsert bool
	// ReplaceScope names the columns whose runtime defaults bound the
	// delete of a replace batch. Empty clears the whole table.
	ReplaceScope []string
}

// Column returns the column named name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks that keys and scope refer to declared columns.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if slices.Contains(names, c.Name) {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		names = append(names, c.Name)
	}
	for _, k := range t.Keys {
		if !slices.Contains(names, k) {
			return fmt.Errorf("table %s: key column %s is not declared", t.Name, k)
		}
	}
	for _, s := range t.ReplaceScope {
		if !slices.Contains(names, s) {
			return fmt.Errorf("table %s: scope column %s is not declared", t.Name, s)
		}
	}
	if t.Upsert && len(t.Keys) == 0 {
		return fmt.Errorf("table %s: upsert requires key columns", t.Name)
	}
	return nil
}
