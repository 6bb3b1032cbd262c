package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var storagePath, migrationsPath string

	flag.StringVar(&storagePath, "storage-path", "", "path to the sqlite database")
	flag.StringVar(&migrationsPath, "migrations-path", "migrations", "path to the migrations directory")
	flag.Parse()

	if storagePath == "" {
		panic("storage-path is required")
	}

	m, err := migrate.New(
		"file://"+migrationsPath,
		"sqlite3://"+storagePath,
	)
	if err != nil {
		panic(err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}

	fmt.Println("migrations applied successfully")
}
