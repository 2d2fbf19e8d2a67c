// Package dedup remembers which alerts have already been dispatched.
package dedup

import "github.com/gabihorn/beiter-alert-bot/internal/alert"

// DefaultHistory is large enough that alerts alternating in the feed are not
// sent again while they stay live.
const DefaultHistory = 16

// Tracker holds the identities of the most recently dispatched alerts, newest
// last. With a history of one it is the single "last dispatched" slot.
//
// Tracker is not safe for concurrent use; the poll loop owns it.
type Tracker struct {
	history int
	recent  []alert.Identity
}

// New returns an empty tracker remembering up to history identities.
// Values below one are treated as one.
func New(history int) *Tracker {
	if history < 1 {
		history = 1
	}
	return &Tracker{history: history, recent: make([]alert.Identity, 0, history)}
}

// IsNew reports whether id differs from every remembered identity.
func (t *Tracker) IsNew(id alert.Identity) bool {
	for _, seen := range t.recent {
		if seen == id {
			return false
		}
	}
	return true
}

// MarkDispatched records id as the latest dispatched identity, evicting the
// oldest one when the history is full.
func (t *Tracker) MarkDispatched(id alert.Identity) {
	for i, seen := range t.recent {
		if seen == id {
			t.recent = append(t.recent[:i], t.recent[i+1:]...)
			break
		}
	}
	if len(t.recent) == t.history {
		t.recent = append(t.recent[:0], t.recent[1:]...)
	}
	t.recent = append(t.recent, id)
}

// Last returns the most recently dispatched identity.
func (t *Tracker) Last() (alert.Identity, bool) {
	if len(t.recent) == 0 {
		return "", false
	}
	return t.recent[len(t.recent)-1], true
}
