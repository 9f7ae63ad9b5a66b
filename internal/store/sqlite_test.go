package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/espace-membre/internal/member"
	"github.com/kingrea/espace-membre/internal/wizard"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state", "espace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSlotLifecycle(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load()
	assert.ErrorIs(t, err, wizard.ErrStateNotFound)

	snap := member.Snapshot{Info: member.Info{ID: "ada", End: member.NewDate(2023, time.December, 31)}, IsExpired: true}
	state := wizard.State{
		Version:  wizard.StateVersion,
		RunID:    "run-1",
		Step:     wizard.StepUpdateEndDate,
		Steps:    wizard.AssembleSteps(snap),
		MemberID: "ada",
		Member:   &snap,
	}
	require.NoError(t, s.Save(state))
	state.Step = wizard.StepAwaitEndDateApplied
	state.PullRequestURL = "https://github.com/org/repo/pull/5"
	require.NoError(t, s.Save(state))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, wizard.StepAwaitEndDateApplied, loaded.Step)
	assert.Equal(t, state.Steps, loaded.Steps)
	assert.Equal(t, "https://github.com/org/repo/pull/5", loaded.PullRequestURL)
	require.NotNil(t, loaded.Member)
	assert.True(t, loaded.Member.IsExpired)

	require.NoError(t, s.Clear())
	_, err = s.Load()
	assert.ErrorIs(t, err, wizard.ErrStateNotFound)
}

func TestSQLiteCorruptSlot(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetRaw("{"))
	_, err := s.Load()
	assert.True(t, errors.Is(err, wizard.ErrStateCorrupt), "got %v", err)
}

func TestSQLiteDrivesController(t *testing.T) {
	s := openTestStore(t)
	c, err := wizard.New(s)
	require.NoError(t, err)
	require.NoError(t, c.Start(member.Snapshot{Info: member.Info{ID: "ada"}, IsExpired: true, HasEmailInfos: true}))
	_, err = c.Advance()
	require.NoError(t, err)

	resumed, err := wizard.New(s)
	require.NoError(t, err)
	ok, err := resumed.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, wizard.StepUpdateEndDate, resumed.Step())

	require.NoError(t, resumed.Reset())
	_, err = s.Load()
	assert.ErrorIs(t, err, wizard.ErrStateNotFound)
}
