package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/bher20/powerdash/internal/storage"
)

//go:embed migrations
var embedMigrations embed.FS

// target resolves a storage driver name to the gorm driver that opens the
// connection, the goose dialect and the embedded migration directory.
type target struct {
	driver  string
	dialect string
	dir     string
}

func resolve(driver string) (target, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return target{driver: "sqlite", dialect: "sqlite3", dir: "migrations/sqlite"}, nil
	case "postgres", "pgx":
		return target{driver: "postgres", dialect: "postgres", dir: "migrations/postgres"}, nil
	default:
		return target{}, fmt.Errorf("unsupported driver for migrations: %q", driver)
	}
}

// open borrows the connection pool of the storage layer so migrations run
// on the same database/sql driver registration as the service.
func open(driver, dsn string) (*sql.DB, target, error) {
	t, err := resolve(driver)
	if err != nil {
		return nil, t, err
	}
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect(t.dialect); err != nil {
		return nil, t, err
	}
	store, err := storage.NewGormStorage(t.driver, dsn)
	if err != nil {
		return nil, t, fmt.Errorf("open %s: %w", t.driver, err)
	}
	db, err := store.SQLDB()
	if err != nil {
		_ = store.Close()
		return nil, t, err
	}
	return db, t, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, driver, dsn string) error {
	db, t, err := open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.UpContext(ctx, db, t.dir)
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, driver, dsn string) error {
	db, t, err := open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.DownContext(ctx, db, t.dir)
}

// Status logs the applied state of each migration.
func Status(ctx context.Context, driver, dsn string) error {
	db, t, err := open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.StatusContext(ctx, db, t.dir)
}

// Version returns the current schema version.
func Version(ctx context.Context, driver, dsn string) (int64, error) {
	db, _, err := open(driver, dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return goose.GetDBVersionContext(ctx, db)
}
