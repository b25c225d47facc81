package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var versionPrefix = regexp.MustCompile(`^(\d+)`)

type migration struct {
	name string
	ver  int
}

// ApplyMigrations applies the schema/*.sql files of migrationsFS that are not
// yet recorded in schema_migrations, in numeric order, one transaction each.
func ApplyMigrations(db *sql.DB, migrationsFS fs.FS) error {
	_, err := applyPending(db, migrationsFS)
	return err
}

// Migrate is ApplyMigrations reporting how many files were applied.
func Migrate(db *sql.DB, migrationsFS fs.FS) (int, error) {
	return applyPending(db, migrationsFS)
}

func applyPending(db *sql.DB, migrationsFS fs.FS) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return 0, err
	}

	items, err := listMigrations(migrationsFS)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, it := range items {
		if applied[it.ver] {
			continue
		}

		b, err := fs.ReadFile(migrationsFS, path.Join("schema", it.name))
		if err != nil {
			return n, fmt.Errorf("read migration %s: %w", it.name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return n, fmt.Errorf("begin tx: %w", err)
		}
		if _, err := tx.Exec(string(b)); err != nil {
			tx.Rollback()
			return n, fmt.Errorf("exec migration %s: %w", it.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, it.ver); err != nil {
			tx.Rollback()
			return n, fmt.Errorf("record migration %s: %w", it.name, err)
		}
		if err := tx.Commit(); err != nil {
			return n, fmt.Errorf("commit migration %s: %w", it.name, err)
		}
		n++
	}

	return n, nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func listMigrations(migrationsFS fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "schema")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var items []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := versionPrefix.FindStringSubmatch(e.Name())
		if len(m) < 2 {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		items = append(items, migration{name: e.Name(), ver: v})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ver < items[j].ver })
	return items, nil
}
