package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/espace-membre/internal/config"
	"github.com/kingrea/espace-membre/internal/member"
	"github.com/kingrea/espace-membre/internal/store"
	"github.com/kingrea/espace-membre/internal/wizard"
)

func startRun(t *testing.T, states wizard.StateStore) {
	t.Helper()
	ctrl, err := wizard.New(states)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctrl.Start(member.Snapshot{Info: member.Info{ID: "ada.lovelace"}, IsExpired: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestResetClearsFileState(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(&globalFlags{project: dir})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	states := wizard.NewFileStore(cfg.StatePath())
	startRun(t, states)

	out := execute(t, "reset", "--project", dir)
	if !strings.Contains(out, "Session effacée.") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := states.Load(); !errors.Is(err, wizard.ErrStateNotFound) {
		t.Fatalf("expected cleared state, got %v", err)
	}
}

func TestResetClearsSQLiteState(t *testing.T) {
	t.Setenv("ESPACE_STATE_BACKEND", config.BackendSQLite)
	dir := t.TempDir()
	cfg, err := loadConfig(&globalFlags{project: dir})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	db, err := store.NewSQLite(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	startRun(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	execute(t, "reset", "--project", dir)

	db, err = store.NewSQLite(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()
	if _, err := db.Load(); !errors.Is(err, wizard.ErrStateNotFound) {
		t.Fatalf("expected cleared state, got %v", err)
	}
}

func TestLoadConfigCreatesProjectDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(&globalFlags{project: dir})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(cfg.ProjectConfigPath()); err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}
	if cfg.StateBackend() != config.BackendFile {
		t.Fatalf("backend = %q", cfg.StateBackend())
	}
}

func TestPortalFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(&globalFlags{project: dir, portal: "https://espace-membre.example.org"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PortalURL() != "https://espace-membre.example.org" {
		t.Fatalf("portal = %q", cfg.PortalURL())
	}
	if _, err := loadConfig(&globalFlags{project: dir, portal: "not a url"}); err == nil {
		t.Fatalf("expected invalid portal URL to fail")
	}
}

func TestDotEnvFeedsOverrides(t *testing.T) {
	// Register a restore, then unset so .env can provide the value.
	t.Setenv("ESPACE_LOG_LEVEL", "")
	os.Unsetenv("ESPACE_LOG_LEVEL")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ESPACE_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	cfg, err := loadConfig(&globalFlags{project: dir})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Project.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Project.Logging.Level)
	}
}

func TestUnknownSubcommandFails(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reset", "extra"})
	if err := root.Execute(); err == nil {
		t.Fatalf("reset must reject arguments")
	}
}
