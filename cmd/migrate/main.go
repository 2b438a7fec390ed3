// Command migrate runs the Postgres schema migrations by hand.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/example/blogauth/internal/config"
	"github.com/example/blogauth/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down, 0 means all)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatalf("migrations only work with PostgreSQL, current adapter: %s", cfg.DBAdapter)
	}

	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	m, err := store.NewMigrator(migrationsDir, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("migrator: %v", err)
	}
	defer m.Close()

	logger := log.WithFields(logrus.Fields{"command": *command, "dir": migrationsDir})
	switch *command {
	case "up":
		if err := m.Up(*steps); err != nil {
			logger.WithError(err).Fatal("migration up failed")
		}
		logger.Info("migrations applied")
	case "down":
		if err := m.Down(*steps); err != nil {
			logger.WithError(err).Fatal("migration down failed")
		}
		logger.Info("migrations rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			logger.WithError(err).Fatal("reading version failed")
		}
		if dirty {
			fmt.Printf("database is in a dirty state (version %d)\n", v)
			os.Exit(1)
		}
		fmt.Printf("current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			logger.Fatal("force needs -version")
		}
		if err := m.Force(int(*version)); err != nil {
			logger.WithError(err).Fatal("force failed")
		}
		logger.WithField("version", *version).Info("forced database version")
	default:
		logger.Fatalf("unknown command %q (supported: up, down, version, force)", *command)
	}
}
