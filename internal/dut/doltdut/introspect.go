package doltdut

import (
	"context"
	"database/sql"
	"fmt"

	"ariga.io/atlas/sql/mysql"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// introspect reflects the live schema of database using Atlas's MySQL
// driver, which Dolt's wire protocol is compatible enough with to satisfy.
func introspect(ctx context.Context, db *sql.DB, database string) (*catalog.RawSchema, error) {
	drv, err := mysql.Open(db)
	if err != nil {
		return nil, fmt.Errorf("doltdut: open atlas driver: %w", err)
	}
	schema, err := drv.InspectSchema(ctx, database, nil)
	if err != nil {
		return nil, fmt.Errorf("doltdut: inspect schema %s: %w", database, err)
	}
	return &catalog.RawSchema{Schema: schema}, nil
}
