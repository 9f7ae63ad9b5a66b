package wizard

import (
	"time"

	"github.com/kingrea/espace-membre/internal/member"
)

// MergeStatus tracks an end-date change request from opening to being applied.
type MergeStatus string

const (
	MergeStatusNotMerged MergeStatus = "notMerged"
	MergeStatusMerged    MergeStatus = "merged"
	MergeStatusValidated MergeStatus = "validated"
)

// MergeTracker interprets the observations of the pull-request loop. A request
// missing from the open list is assumed merged; the change is validated once the
// member's end date is strictly in the future.
type MergeTracker struct {
	url    string
	status MergeStatus
	clock  func() time.Time
}

// NewMergeTracker starts tracking url.
func NewMergeTracker(url string, clock func() time.Time) *MergeTracker {
	if clock == nil {
		clock = time.Now
	}
	return &MergeTracker{url: url, status: MergeStatusNotMerged, clock: clock}
}

// URL returns the tracked change reference.
func (t *MergeTracker) URL() string {
	return t.url
}

// Status returns the current status.
func (t *MergeTracker) Status() MergeStatus {
	return t.status
}

// Validated reports whether the operator may move on.
func (t *MergeTracker) Validated() bool {
	return t.status == MergeStatusValidated
}

// NeedsChangeRequests reports whether the next tick lists open change requests.
func (t *MergeTracker) NeedsChangeRequests() bool {
	return t.status == MergeStatusNotMerged
}

// NeedsMember reports whether the next tick re-fetches the member.
func (t *MergeTracker) NeedsMember() bool {
	return t.status == MergeStatusMerged
}

// ObserveOpen records the list of open change-request URLs.
func (t *MergeTracker) ObserveOpen(urls []string) MergeStatus {
	if t.status != MergeStatusNotMerged {
		return t.status
	}
	for _, url := range urls {
		if url == t.url {
			return t.status
		}
	}
	t.status = MergeStatusMerged
	return t.status
}

// ObserveMember records a fresh member snapshot. A future end date validates the
// change whatever the merge status.
func (t *MergeTracker) ObserveMember(snap member.Snapshot) MergeStatus {
	if snap.Info.End.InFuture(t.clock()) {
		t.status = MergeStatusValidated
	}
	return t.status
}
