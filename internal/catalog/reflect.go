package catalog

import (
	"fmt"

	atlasschema "ariga.io/atlas/sql/schema"
)

// RawSchema is what a DUT driver's Introspect call hands back: one Atlas
// schema per reflected database. Reusing Atlas's schema.Table/schema.Column
// types here means the driver-specific reflection SQL only has to
// produce the structure Atlas's own MySQL/Postgres/SQLite drivers already
// produce, instead of a second hand-rolled catalog shape.
type RawSchema struct {
	Schema *atlasschema.Schema
}

// columnKind maps an Atlas column type to the Kind this catalog reasons
// about. Atlas's type system is far richer (precision, length, charset);
// the fuzzer only needs the coarse scalar family.
func columnKind(t atlasschema.Type) Kind {
	switch t.(type) {
	case *atlasschema.BoolType:
		return KindBool
	case *atlasschema.IntegerType, *atlasschema.DecimalType:
		return KindInt
	case *atlasschema.FloatType:
		return KindReal
	case *atlasschema.StringType, *atlasschema.EnumType:
		return KindText
	default:
		return KindText
	}
}

// ReflectFrom populates the catalog from a live target's reflected schema,
// in addition to (not instead of) any generator-created tables already
// registered. It never mutates raw.Schema.
func (c *Catalog) ReflectFrom(raw *RawSchema) error {
	if raw == nil || raw.Schema == nil {
		return fmt.Errorf("catalog: reflect: nil schema")
	}

	for _, t := range raw.Schema.Tables {
		table := &Table{
			Name:         t.Name,
			Schema:       raw.Schema.Name,
			IsBaseTable:  true,
			IsInsertable: true,
		}
		for _, col := range t.Columns {
			typeName := columnKind(col.Type.Type).String()
			typ := c.TypeNamed(typeName)
			if typ == nil {
				return fmt.Errorf("catalog: reflect: column %s.%s has unmappable type", t.Name, col.Name)
			}
			table.Columns = append(table.Columns, &Column{Name: col.Name, Type: typ})
		}
		if t.PrimaryKey != nil {
			table.ConstraintIDs = append(table.ConstraintIDs, t.PrimaryKey.Name)
		}
		for _, idx := range t.Indexes {
			table.ConstraintIDs = append(table.ConstraintIDs, idx.Name)
		}
		c.RegisterTable(table)
	}
	return nil
}
