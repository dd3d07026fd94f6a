package db

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
	up      string
	down    string
}

// RunMigrations applies all pending migrations.
func RunMigrations(dbPath string) error {
	return runMigrate(dbPath, false)
}

// RollbackMigrations rolls back all migrations.
func RollbackMigrations(dbPath string) error {
	return runMigrate(dbPath, true)
}

// loadMigrations reads the embedded NNN_name.{up,down}.sql files, ordered by version.
func loadMigrations() ([]*migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[int]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		var version int
		var suffix string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &suffix); err != nil {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			m.up = string(content)
			m.name = strings.TrimSuffix(name, ".up.sql")
		case strings.HasSuffix(name, ".down.sql"):
			m.down = string(content)
		}
	}

	migrations := make([]*migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

func runMigrate(dbPath string, down bool) error {
	if err := ensureDir(dbPath); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current, dirty int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0), COALESCE(MAX(dirty), 0) FROM schema_migrations`).Scan(&current, &dirty)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty != 0 {
		return fmt.Errorf("database is in dirty state at version %d, manual intervention required", current)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if down {
		for i := len(migrations) - 1; i >= 0; i-- {
			m := migrations[i]
			if m.version > current {
				continue
			}
			if err := step(db, m.version, m.down, true); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := step(db, m.version, m.up, false); err != nil {
			return err
		}
	}
	return nil
}

// step runs one migration script, marking the version dirty while it runs.
func step(db *sql.DB, version int, script string, down bool) error {
	direction := "up"
	if down {
		direction = "down"
	}
	if script == "" {
		return fmt.Errorf("no %s migration for version %d", direction, version)
	}

	if _, err := db.Exec(`INSERT OR REPLACE INTO schema_migrations (version, dirty) VALUES (?, 1)`, version); err != nil {
		return fmt.Errorf("mark version %d as dirty: %w", version, err)
	}
	if _, err := db.Exec(script); err != nil {
		return fmt.Errorf("run %s migration %d: %w", direction, version, err)
	}

	if down {
		_, err := db.Exec(`DELETE FROM schema_migrations WHERE version = ?`, version)
		if err != nil {
			return fmt.Errorf("remove version %d: %w", version, err)
		}
		return nil
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 0 WHERE version = ?`, version); err != nil {
		return fmt.Errorf("mark version %d as clean: %w", version, err)
	}
	return nil
}
