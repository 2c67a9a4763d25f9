package config

import (
	"errors"
	"testing"
)

func TestDefaultWorkspacesValidates(t *testing.T) {
	if err := DefaultWorkspaces().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WorkspacesConfig)
	}{
		{"empty default role", func(w *WorkspacesConfig) { w.DefaultRoleSlug = " " }},
		{"alias with empty target", func(w *WorkspacesConfig) { w.RoleAliases["ghost"] = "" }},
		{"ability with empty name", func(w *WorkspacesConfig) { w.Abilities[""] = AbilityRule{Roles: []string{"*"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWorkspaces()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestManagedRoleSlugs(t *testing.T) {
	cfg := DefaultWorkspaces()
	slugs := cfg.ManagedRoleSlugs()

	seen := make(map[string]int)
	for _, s := range slugs {
		seen[s]++
	}
	for _, want := range []string{"workspace-owner", "workspace-member", "workspace-editor", "workspace-viewer", "workspace-contributor"} {
		if seen[want] != 1 {
			t.Errorf("slug %q appears %d times, want exactly once", want, seen[want])
		}
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{URL: "postgres://x/y"}
	if got := db.DSN(); got != "postgres://x/y" {
		t.Errorf("DSN = %q, want the explicit URL", got)
	}

	db = DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "pw", DBName: "collab", SSLMode: "disable"}
	want := "postgres://app:pw@db:5432/collab?sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
