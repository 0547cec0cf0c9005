package accountstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"prospector/internal/model"
)

// ActivityNote is one entry in an account's activity log.
type ActivityNote struct {
	ID               json.Number `json:"id"`
	Text             string      `json:"text"`
	ActivityType     string      `json:"activity_type"`
	CreatedAt        string      `json:"created_at"`
	CreatedLocalDate string      `json:"created_local_date"`

	// raw is an entry that did not decode; it is written back unchanged.
	raw json.RawMessage
}

func (n *ActivityNote) UnmarshalJSON(b []byte) error {
	type plain ActivityNote
	var p plain
	if err := json.Unmarshal(b, &p); err == nil {
		*n = ActivityNote(p)
		return nil
	}
	*n = ActivityNote{raw: append(json.RawMessage(nil), b...)}
	// Keep a string or numeric id so the entry can still be deleted.
	var loose struct {
		ID any `json:"id"`
	}
	if json.Unmarshal(b, &loose) == nil {
		switch id := loose.ID.(type) {
		case string:
			n.ID = json.Number(id)
		case float64:
			n.ID = json.Number(strconv.FormatFloat(id, 'f', -1, 64))
		}
	}
	return nil
}

func (n ActivityNote) MarshalJSON() ([]byte, error) {
	if n.raw != nil {
		return n.raw, nil
	}
	type plain ActivityNote
	return marshal(plain(n))
}

// Activity types accepted on new notes.
var ActivityTypes = []string{"note", "call", "visit", "email", "tasting", "order", "follow_up"}

// Flags that can be set or toggled on an account.
const (
	FlagActiveOpp       = fieldActiveOpp
	FlagActiveAccount   = fieldActiveAccount
	FlagVenueTypeLocked = fieldVenueTypeLocked
)

var (
	ErrEmptyNote       = errors.New("note text is required")
	ErrUnknownActivity = errors.New("unknown activity type")
	ErrUnknownFlag     = errors.New("unknown flag")
	// ErrNoChange is returned by a mutation that leaves the state as it was.
	ErrNoChange = errors.New("no change")
)

func validActivity(t string) bool {
	for _, a := range ActivityTypes {
		if a == t {
			return true
		}
	}
	return false
}

// IDGenerator hands out note ids from a millisecond clock, strictly increasing
// across the process and always above a caller-supplied floor.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator { return &IDGenerator{now: time.Now} }

// Next returns an id greater than both the previous id and floor.
func (g *IDGenerator) Next(floor int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	if id <= floor {
		id = floor + 1
	}
	g.last = id
	return id
}

// maxNoteID is the largest id in the list rounded down; legacy ids may be fractional.
func (s *State) maxNoteID() int64 {
	var max int64
	for _, n := range s.Notes {
		f, err := n.ID.Float64()
		if err != nil || math.IsNaN(f) {
			continue
		}
		if v := int64(math.Floor(f)); v > max {
			max = v
		}
	}
	return max
}

// AddNote prepends a new activity note. Every call adds a distinct entry.
func (s *State) AddNote(gen *IDGenerator, text, activityType string, now time.Time, loc *time.Location) (ActivityNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ActivityNote{}, ErrEmptyNote
	}
	if activityType == "" {
		activityType = "note"
	}
	if !validActivity(activityType) {
		return ActivityNote{}, fmt.Errorf("%w: %s", ErrUnknownActivity, activityType)
	}
	if loc == nil {
		loc = time.UTC
	}
	id := gen.Next(s.maxNoteID())
	n := ActivityNote{
		ID:               json.Number(strconv.FormatInt(id, 10)),
		Text:             text,
		ActivityType:     activityType,
		CreatedAt:        now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		CreatedLocalDate: now.In(loc).Format("2006-01-02"),
	}
	s.Notes = append([]ActivityNote{n}, s.Notes...)
	s.touch(fieldNotes)
	return n, nil
}

// DeleteNote removes notes whose id matches exactly. A missing id is ErrNoChange.
func (s *State) DeleteNote(id string) error {
	kept := s.Notes[:0:0]
	for _, n := range s.Notes {
		if n.ID.String() != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(s.Notes) {
		return ErrNoChange
	}
	s.Notes = kept
	s.touch(fieldNotes)
	return nil
}

func (s *State) flag(name string) (*bool, error) {
	switch name {
	case FlagActiveOpp:
		return &s.ActiveOpp, nil
	case FlagActiveAccount:
		return &s.ActiveAccount, nil
	case FlagVenueTypeLocked:
		return &s.VenueTypeLocked, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, name)
}

// SetFlag sets one boolean flag.
func (s *State) SetFlag(name string, v bool) error {
	p, err := s.flag(name)
	if err != nil {
		return err
	}
	if *p == v && !s.isInvalid(name) {
		return ErrNoChange
	}
	*p = v
	s.touch(name)
	return nil
}

// ToggleFlag flips one boolean flag and returns its new value.
func (s *State) ToggleFlag(name string) (bool, error) {
	p, err := s.flag(name)
	if err != nil {
		return false, err
	}
	*p = !*p
	s.touch(name)
	return *p, nil
}

// SetTier stores the volume tier; an empty tier clears it.
func (s *State) SetTier(tier string) error {
	if s.Tier() == tier && !s.isInvalid(fieldGPVTier) {
		return ErrNoChange
	}
	s.GPVTier = nil
	if tier != "" {
		s.GPVTier = &tier
	}
	s.touch(fieldGPVTier)
	return nil
}

func (s *State) SetVenueType(venueType string) error {
	if s.VenueType == venueType && !s.isInvalid(fieldVenueType) {
		return ErrNoChange
	}
	s.VenueType = venueType
	s.touch(fieldVenueType)
	return nil
}

func (s *State) SetAIResponse(text string) error {
	if s.AIResponse == text && !s.isInvalid(fieldAIResponse) {
		return ErrNoChange
	}
	s.AIResponse = text
	s.touch(fieldAIResponse)
	return nil
}

// SetBusinessHours caches an external place-hours result as raw JSON.
func (s *State) SetBusinessHours(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.BusinessHours = b
	s.touch(fieldBusinessHours)
	return nil
}

// SetHistory replaces the receipts history, kept ascending by raw date.
func (s *State) SetHistory(h []model.MonthlyReceipt) {
	out := append([]model.MonthlyReceipt(nil), h...)
	SortHistory(out)
	s.History = out
	s.touch(fieldHistory)
}

func (s *State) SetKey(key string) {
	s.Key = strings.TrimPrefix(key, LegacyKeyPrefix)
	s.touch(fieldKey)
}

func (s *State) isInvalid(field string) bool {
	_, ok := s.invalid[field]
	return ok
}

// Tier returns the stored tier or "".
func (s *State) Tier() string {
	if s.GPVTier == nil {
		return ""
	}
	return *s.GPVTier
}
