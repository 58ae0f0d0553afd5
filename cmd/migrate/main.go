package main

import (
	"os"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	dbconf "github.com/kthomas/go-db-config"

	"github.com/couchbc/rent/common"
)

const defaultMigrationsPath = "file://./ops/migrations"

func main() {
	cfg := dbconf.GetDBConfig()
	db := dbconf.DatabaseConnection()

	driver, err := postgres.WithInstance(db.DB(), &postgres.Config{})
	if err != nil {
		common.Log.Panicf("failed to initialize postgres migration driver; %s", err.Error())
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath(), cfg.DatabaseName, driver)
	if err != nil {
		common.Log.Panicf("failed to initialize migrations; %s", err.Error())
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		common.Log.Panicf("failed to run migrations; %s", err.Error())
	}

	common.Log.Debugf("migrations complete for database %s", cfg.DatabaseName)
}

func migrationsPath() string {
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		return path
	}
	return defaultMigrationsPath
}
