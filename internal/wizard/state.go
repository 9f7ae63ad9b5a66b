package wizard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kingrea/espace-membre/internal/member"
)

// StateVersion is the schema version written into every persisted record.
const StateVersion = 1

// State captures the persisted snapshot of a remediation run.
type State struct {
	Version  int    `json:"version"`
	RunID    string `json:"run_id,omitempty"`
	Step     Step   `json:"step"`
	Steps    []Step `json:"steps,omitempty"`
	MemberID string `json:"member_id,omitempty"`
	// Member is the last fetched snapshot; it is replaced, never patched.
	Member *member.Snapshot `json:"member,omitempty"`
	// PullRequestURL references the change request opened mid-run.
	PullRequestURL string    `json:"pull_request_url,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func initialState() State {
	return State{Version: StateVersion, Step: StepSelectMember}
}

// Started reports whether a member was selected for this run.
func (s State) Started() bool {
	return s.MemberID != ""
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Steps = cloneSteps(s.Steps)
	if s.Member != nil {
		snap := s.Member.Clone()
		out.Member = &snap
	}
	return out
}

// Validate rejects records that cannot be resumed.
func (s State) Validate() error {
	if s.Version < 1 || s.Version > StateVersion {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	if !s.Step.Valid() {
		return fmt.Errorf("unknown step %q", s.Step)
	}
	for i, step := range s.Steps {
		if !step.Valid() {
			return fmt.Errorf("steps[%d]: unknown step %q", i, step)
		}
	}
	if s.Member != nil && s.Member.ID() != s.MemberID {
		return fmt.Errorf("member %q does not match member_id %q", s.Member.ID(), s.MemberID)
	}
	return nil
}

// EncodeState serialises a state record.
func EncodeState(s State) ([]byte, error) {
	encoded, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wizard: encode state: %w", err)
	}
	return append(encoded, '\n'), nil
}

// DecodeState parses and validates a persisted record. Any failure is reported
// as ErrStateCorrupt.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	return s, nil
}
