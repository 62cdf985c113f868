package migrate

import (
	"context"
	"path/filepath"
	"testing"
)

func TestUpDown_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "migrate.db")

	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	v, err := Version(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}

	if err := Down(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
	v, _ = Version(ctx, "sqlite", dsn)
	if v != 1 {
		t.Fatalf("expected version 1 after down, got %d", v)
	}
}

func TestResolve_Unsupported(t *testing.T) {
	if _, err := resolve("mysql"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
