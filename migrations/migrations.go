// Package migrations ships the PostgreSQL schema with the binary and applies
// it through ptah's filesystem migrator.
//
// Files follow the NNNNNNNNNN_description.(up|down).sql naming convention.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/go-extras/go-kit/must"
	"github.com/stokaro/ptah/dbschema"
	"github.com/stokaro/ptah/migration/migrator"
)

//go:embed sql/*.sql
var embedded embed.FS

// FS returns the schema files shipped with the binary.
func FS() fs.FS {
	return must.Must(fs.Sub(embedded, "sql"))
}

// Provider loads the embedded migrations without touching a database.
func Provider() (*migrator.FSMigrationProvider, error) {
	return migrator.NewFSMigrationProvider(FS())
}

// Connect opens a schema connection to dbURL and a migrator over the embedded
// migrations. The caller closes the connection.
func Connect(dbURL string, logger *slog.Logger) (*migrator.Migrator, *dbschema.DatabaseConnection, error) {
	conn, err := dbschema.ConnectToDatabase(dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect for migrations: %w", err)
	}
	m, err := migrator.NewFSMigrator(conn, FS())
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("load migrations: %w", err)
	}
	if logger != nil {
		m = m.WithLogger(logger)
	}
	return m, conn, nil
}
