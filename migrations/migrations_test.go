package migrations_test

import (
	"strings"
	"testing"

	"github.com/zyncure/zyncure/internal/platform/db"
	"github.com/zyncure/zyncure/migrations"
)

func TestEmbeddedMigrations_Sequential(t *testing.T) {
	migs, err := db.NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i, m := range migs {
		if m.Version != i+1 {
			t.Errorf("expected version %d, got %d (%s)", i+1, m.Version, m.Name)
		}
	}
}

// Booking sends a nil reason as NULL, so the column must accept it once all
// migrations have run.
func TestEmbeddedMigrations_AppointmentReasonNullable(t *testing.T) {
	migs, err := db.NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	nullable := false
	for _, m := range migs {
		sql := strings.ToLower(m.SQL)
		if strings.Contains(sql, "reason              text not null") {
			nullable = false
		}
		if strings.Contains(sql, "alter column reason drop not null") {
			nullable = true
		}
		if strings.Contains(sql, "alter column reason set not null") {
			nullable = false
		}
	}
	if !nullable {
		t.Error("expected appointments.reason to be nullable after all migrations")
	}
}
