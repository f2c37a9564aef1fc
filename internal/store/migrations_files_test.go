package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsHaveUpAndDownSections(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{5})_[a-z_]+\.sql$`)
	seen := map[string]bool{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected migration file name %q", entry.Name())
		}
		if seen[match[1]] {
			t.Fatalf("duplicate migration version %s", match[1])
		}
		seen[match[1]] = true

		body, err := fs.ReadFile(migrations, migrationsDir+"/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		text := string(body)
		up := strings.Index(text, "-- +goose Up")
		down := strings.Index(text, "-- +goose Down")
		if up < 0 || down < 0 || down < up {
			t.Fatalf("%s must contain an Up section followed by a Down section", entry.Name())
		}
	}
	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
}

func TestChargeMigrationDeclaresSingleActiveIndex(t *testing.T) {
	body, err := fs.ReadFile(migrations, migrationsDir+"/00004_bishop_charges.sql")
	if err != nil {
		t.Fatalf("read charge migration: %v", err)
	}
	if !strings.Contains(string(body), "WHERE is_active") {
		t.Fatal("bishop_charges must carry a partial unique index on the active flag")
	}
}
