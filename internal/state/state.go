package state

import (
	"encoding/json"
	"sort"
)

// StringSet is an unordered set of opaque identifiers. It is encoded to JSON as a sorted array.
type StringSet map[string]struct{}

func NewStringSet(vals ...string) StringSet {
	s := make(StringSet, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(b []byte) error {
	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = NewStringSet(vals...)
	return nil
}

// TargetState records what has been done for one follow target.
type TargetState struct {
	// DIDs which have had a follow attempted (including failed attempts)
	Followed StringSet `json:"followed"`

	// AT-URIs of posts which have been liked
	LikedPosts StringSet `json:"liked_posts"`
}

func NewTargetState() *TargetState {
	return &TargetState{
		Followed:   NewStringSet(),
		LikedPosts: NewStringSet(),
	}
}

// AccountState is the persisted record of prior actions for one automated account.
type AccountState struct {
	KnownFollowers StringSet `json:"known_followers"`

	// follower DID to timestamp (RFC 3339) of the last direct message sent
	DMHistory map[string]string `json:"dm_history"`

	Targets map[string]*TargetState `json:"targets"`
}

func NewAccountState() *AccountState {
	return &AccountState{
		KnownFollowers: NewStringSet(),
		DMHistory:      make(map[string]string),
		Targets:        make(map[string]*TargetState),
	}
}

// Target returns the state for a target handle, creating an empty entry if needed.
func (a *AccountState) Target(handle string) *TargetState {
	ts, ok := a.Targets[handle]
	if !ok || ts == nil {
		ts = NewTargetState()
		a.Targets[handle] = ts
	}
	return ts
}

// fill replaces nil collections left over from partial or legacy documents.
func (a *AccountState) fill() {
	if a.KnownFollowers == nil {
		a.KnownFollowers = NewStringSet()
	}
	if a.DMHistory == nil {
		a.DMHistory = make(map[string]string)
	}
	if a.Targets == nil {
		a.Targets = make(map[string]*TargetState)
	}
	for handle, ts := range a.Targets {
		if ts == nil {
			a.Targets[handle] = NewTargetState()
			continue
		}
		if ts.Followed == nil {
			ts.Followed = NewStringSet()
		}
		if ts.LikedPosts == nil {
			ts.LikedPosts = NewStringSet()
		}
	}
}

// Encode serializes the full snapshot. Output is deterministic: sets are sorted, map keys are sorted by encoding/json.
func Encode(a *AccountState) ([]byte, error) {
	a.fill()
	return json.MarshalIndent(a, "", "  ")
}

func Decode(b []byte) (*AccountState, error) {
	var a AccountState
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	a.fill()
	return &a, nil
}
