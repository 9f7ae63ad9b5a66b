package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	projectDir := t.TempDir()
	espaceDir := filepath.Join(projectDir, EspaceDir)
	if err := os.MkdirAll(espaceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(espaceDir, "config.yaml"), []byte(strings.TrimSpace(body)), 0o644); err != nil {
		t.Fatal(err)
	}
	return projectDir
}

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.PortalURL() != defaultPortalURL {
		t.Fatalf("portal url = %q", c.PortalURL())
	}
	if c.StateBackend() != BackendFile {
		t.Fatalf("backend = %q", c.StateBackend())
	}
	polling := c.Polling()
	if polling.Connectivity != 30*time.Second || polling.Account != time.Minute || polling.Merge != time.Minute {
		t.Fatalf("unexpected polling defaults: %+v", polling)
	}
	if c.SandboxAddress() != "127.0.0.1:8100" {
		t.Fatalf("sandbox address = %q", c.SandboxAddress())
	}
}

func TestInitProjectDirWritesLoadableDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("InitProjectDir: %v", err)
	}
	for _, dir := range []string{"logs", "state"} {
		if info, err := os.Stat(filepath.Join(projectDir, EspaceDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("missing %s dir: %v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Project.Sandbox.MergeDelay != 2*time.Minute || c.Project.Sandbox.LoginDelay != 20*time.Second {
		t.Fatalf("sandbox delays not parsed: %+v", c.Project.Sandbox)
	}
	if c.StatePath() != filepath.Join(projectDir, EspaceDir, "state", "wizard.json") {
		t.Fatalf("state path = %s", c.StatePath())
	}
	// A second init keeps the existing file.
	if err := os.WriteFile(c.ProjectConfigPath(), []byte("version: 1\nstate:\n  backend: sqlite\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("second InitProjectDir: %v", err)
	}
	c, err = NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.StateBackend() != BackendSQLite {
		t.Fatalf("config overwritten, backend = %q", c.StateBackend())
	}
}

func TestNewConfigParsesYaml(t *testing.T) {
	projectDir := writeConfig(t, `
version: 1
portal:
  base_url: https://espace-membre.incubateur.net/
  timeout: 5s
polling:
  merge: 10s
state:
  backend: SQLite
logging:
  level: DEBUG
`)
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.PortalURL() != "https://espace-membre.incubateur.net" {
		t.Fatalf("portal url = %q", c.PortalURL())
	}
	if c.Project.Portal.Timeout != 5*time.Second || c.Polling().Merge != 10*time.Second {
		t.Fatalf("durations not parsed: %+v", c.Project)
	}
	if c.Polling().Account != time.Minute {
		t.Fatalf("missing key should keep its default, got %s", c.Polling().Account)
	}
	if c.StateBackend() != BackendSQLite || c.Project.Logging.Level != "debug" {
		t.Fatalf("values not normalized: %+v", c.Project)
	}
}

func TestNewConfigValidation(t *testing.T) {
	cases := map[string]string{
		"backend":  "state:\n  backend: redis\n",
		"url":      "portal:\n  base_url: espace-membre\n",
		"interval": "polling:\n  account: 100ms\n",
		"level":    "logging:\n  level: chatty\n",
		"port":     "sandbox:\n  port: 70000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	projectDir := writeConfig(t, "state:\n  backend: file\n")
	t.Setenv("ESPACE_PORTAL_URL", "http://portal.test:9000")
	t.Setenv("ESPACE_STATE_BACKEND", "sqlite")
	t.Setenv("ESPACE_LOG_LEVEL", "warn")
	t.Setenv("ESPACE_SANDBOX_ADDR", "0.0.0.0:9100")
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.PortalURL() != "http://portal.test:9000" || c.StateBackend() != BackendSQLite || c.Project.Logging.Level != "warn" {
		t.Fatalf("env not applied: %+v", c.Project)
	}
	if c.SandboxAddress() != "0.0.0.0:9100" {
		t.Fatalf("sandbox address = %q", c.SandboxAddress())
	}
}

func TestEnvironmentRejectsBadSandboxAddress(t *testing.T) {
	t.Setenv("ESPACE_SANDBOX_ADDR", "no-port")
	if _, err := NewConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSetPortalURL(t *testing.T) {
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetPortalURL("nope"); err == nil {
		t.Fatalf("expected invalid url error")
	}
	if c.PortalURL() != defaultPortalURL {
		t.Fatalf("failed override changed the url")
	}
	if err := c.SetPortalURL("http://localhost:3000/"); err != nil {
		t.Fatalf("SetPortalURL: %v", err)
	}
	if c.PortalURL() != "http://localhost:3000" {
		t.Fatalf("portal url = %q", c.PortalURL())
	}
}
