package postgresql

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending schema migrations. An already current
// schema is not an error.
func MigrateUp(databaseConfig *Config) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("couldn't create migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseConfig.URL("pgx"))
	if err != nil {
		return fmt.Errorf("couldn't create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("couldn't apply migrations: %w", err)
	}
	return nil
}
