package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/log"
	"github.com/aerosuite/platform/pkg/migrate"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/aerosuite", "AeroSuite data directory")
	dryRun     = flag.Bool("dry-run", false, "List pending migrations without applying them")
	backupPath = flag.String("backup", "", "Backup path for the database before migrating (default: <db>.backup)")
)

func main() {
	flag.Parse()
	log.Init(log.Config{Level: log.InfoLevel})

	dbPath := filepath.Join(*dataDir, "aerosuite.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fatal("database not found at %s", dbPath)
	}

	// Back up before taking the write lock
	if !*dryRun {
		backup := *backupPath
		if backup == "" {
			backup = dbPath + ".backup"
		}
		if err := copyFile(dbPath, backup); err != nil {
			fatal("failed to create backup: %v", err)
		}
		fmt.Printf("Backup created at %s\n", backup)
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		fatal("failed to open database: %v", err)
	}
	defer db.Close()

	runner, err := migrate.NewRunner(db, migrate.Defaults())
	if err != nil {
		fatal("%v", err)
	}

	pending, err := runner.Pending()
	if err != nil {
		fatal("failed to read changelog: %v", err)
	}
	if len(pending) == 0 {
		fmt.Println("Database is up to date.")
		return
	}

	if *dryRun {
		fmt.Printf("Pending migrations (%d):\n", len(pending))
		for _, name := range pending {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("\nDry run completed. Run without --dry-run to apply.")
		return
	}

	applied, err := runner.Apply()
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Migration completed: %d applied.\n", len(applied))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
