package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"folio/engine/db"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestEmbeddedMigrationsMatchDirectory(t *testing.T) {
	onDisk, err := fs.Glob(os.DirFS(filepath.Join("..", "..", "db", "migrations")), "*.sql")
	if err != nil {
		t.Fatalf("glob migrations dir: %v", err)
	}
	embedded, err := fs.Glob(db.Migrations(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded migrations: %v", err)
	}
	sort.Strings(onDisk)
	sort.Strings(embedded)

	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded %v, on disk %v", embedded, onDisk)
	}
	for i := range onDisk {
		if onDisk[i] != embedded[i] {
			t.Fatalf("embedded %v, on disk %v", embedded, onDisk)
		}
	}
}
