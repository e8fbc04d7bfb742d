// Command migrate runs the embedded schema migrations against the
// storefront's Postgres database.
//
//	migrate -database postgres://... up
//	migrate down            # one step back
//	migrate version
//	migrate force <version> # clear a dirty flag after a failed run
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"

	"github.com/vegdirect/storefront/internal/migrations"
)

func main() {
	godotenv.Load()

	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")
		steps       = flag.Int("steps", 0, "limit up/down to this many migrations (0 = all up, 1 down)")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("no database configured: pass -database or set DATABASE_URL")
	}
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	src, err := migrations.Source()
	if err != nil {
		log.Fatalf("load embedded schema: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, *databaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		n := *steps
		if n == 0 {
			n = 1
		}
		err = m.Steps(-n)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalf("read version: %v", verr)
		}
		if dirty {
			fmt.Printf("version %d (dirty)\n", version)
		} else {
			fmt.Printf("version %d\n", version)
		}
		return
	case "force":
		version, perr := strconv.Atoi(flag.Arg(1))
		if perr != nil {
			log.Fatalf("force needs a numeric version, got %q", flag.Arg(1))
		}
		err = m.Force(version)
	default:
		log.Fatalf("unknown command %q (want up, down, version or force)", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("database is up to date")
		return
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
	fmt.Printf("%s: done\n", command)
}
