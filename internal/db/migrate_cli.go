package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand implements the "migrate" subcommand. Output goes to
// out; the returned error is suitable for log.Fatal.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return fmt.Errorf("missing migrate action")
		}
		return nil
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
	case "status":
		st, err := database.GetMigrationStatus(migrations)
		if err != nil {
			return err
		}
		printStatus(out, st)
		return nil
	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: pcn migrate %s <version_number>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "version" {
			err = database.MigrateTo(migrations, uint(v))
		} else {
			err = database.MigrateForce(migrations, v)
		}
		if err != nil {
			return err
		}
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	return printVersion(out, database, migrations)
}

func printVersion(out io.Writer, database *DB, migrations fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func printStatus(out io.Writer, st MigrationStatus) {
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", st.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", st.Dirty)
	fmt.Fprintf(out, "Schema migrations table exists: %v\n", st.TableExists)
	switch {
	case st.Dirty:
		fmt.Fprintln(out, "WARNING: a migration failed mid-way. Inspect the database, then run: pcn migrate force <version>")
	case st.Pending() > 0:
		fmt.Fprintf(out, "%d migration(s) pending. Run: pcn migrate up\n", st.Pending())
	default:
		fmt.Fprintln(out, "Database is up to date")
	}
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Database Migration Commands

Usage: pcn migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

Options:
  -db <path>      Path to database file (default: pcn.db)
`)
}
