package migrations

import (
	"strings"
	"testing"
)

func TestLoadOrdersMigrations(t *testing.T) {
	all, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("migrations = %d, want 2", len(all))
	}
	if all[0].Version != "0001_users" || all[1].Version != "0002_integration_tokens" {
		t.Fatalf("unexpected order %s, %s", all[0].Version, all[1].Version)
	}
	if !strings.Contains(all[1].SQL, "provider text not null unique") {
		t.Fatalf("integration_tokens needs a unique provider for upserts")
	}
}
