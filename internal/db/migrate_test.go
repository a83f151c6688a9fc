package db

import (
	"testing"
	"testing/fstest"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	err := RunMigrate(nil, "sqlite://unused.db", fstest.MapFS{}, ".", "invalid", nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunMigrateForceRequiresVersion(t *testing.T) {
	err := RunMigrate(nil, "sqlite://unused.db", fstest.MapFS{}, ".", "force", nil)
	if err == nil {
		t.Fatal("expected error for force without version")
	}
}
