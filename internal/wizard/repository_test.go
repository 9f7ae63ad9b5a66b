package wizard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/espace-membre/internal/member"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".espace", "state", "wizard.json")
	store := NewFileStore(path)
	if _, err := store.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	snap := member.Snapshot{Info: member.Info{ID: "ada", End: member.NewDate(2025, time.January, 31)}, IsExpired: true}
	state := State{
		Version:        StateVersion,
		RunID:          "run",
		Step:           StepAwaitEndDateApplied,
		Steps:          AssembleSteps(snap),
		MemberID:       "ada",
		Member:         &snap,
		PullRequestURL: "https://github.com/org/repo/pull/3",
		UpdatedAt:      fixedNow,
	}
	if err := store.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `"pull_request_url"`) || !strings.Contains(string(raw), `"2025-01-31"`) {
		t.Fatalf("unexpected encoding:\n%s", raw)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Step != StepAwaitEndDateApplied || loaded.Member == nil || !loaded.Member.Info.End.Equal(snap.Info.End.Time) {
		t.Fatalf("unexpected state: %+v", loaded)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected not found after clear, got %v", err)
	}
}

func TestFileStoreReportsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wizard.json")
	if err := os.WriteFile(path, []byte("]["), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := NewFileStore(path).Load(); !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}
