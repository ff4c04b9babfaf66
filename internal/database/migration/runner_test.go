package migration

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/spigell/uniscan/internal/database/migrations"
)

func TestLoadOrdersAndChecksums(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"V2__add_index.sql":  {Data: []byte("CREATE INDEX a ON t (c);\n")},
		"V1__init.sql":       {Data: []byte("  CREATE TABLE t (c int);  ")},
		"README.md":          {Data: []byte("not a migration")},
		"V3__nested.sql/x":   {Data: []byte("ignored")},
		"v4__lowercase.sql":  {Data: []byte("SELECT 1")},
		"V10__later_one.sql": {Data: []byte("SELECT 10")},
	}

	migs, err := Load(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 || migs[2].Version != 10 {
		t.Fatalf("unexpected order: %d %d %d", migs[0].Version, migs[1].Version, migs[2].Version)
	}
	if migs[0].SQL != "CREATE TABLE t (c int);" {
		t.Fatalf("expected trimmed sql, got %q", migs[0].SQL)
	}
	if len(migs[0].Checksum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", migs[0].Checksum)
	}
}

func TestLoadRejectsBadSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"V1__a.sql":  {Data: []byte("SELECT 1")},
				"V01__b.sql": {Data: []byte("SELECT 2")},
			},
			want: "duplicate migration version",
		},
		{
			name:  "empty file",
			files: fstest.MapFS{"V1__empty.sql": {Data: []byte("  \n")}},
			want:  "empty migration file",
		},
	}

	for _, tt := range tests {
		_, err := Load(tt.files)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected %q error, got %v", tt.name, tt.want, err)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migs, err := Load(migrations.Files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) == 0 {
		t.Fatalf("expected embedded migrations")
	}

	var all strings.Builder
	for _, m := range migs {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"analysis_jobs", "analysis_results", "admission_circulars", "department_requirements", "students", "requirement_checks"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected table %s to be created", table)
		}
	}
}
