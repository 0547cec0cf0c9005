package accountstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/model"
)

func TestParseLegacyKey(t *testing.T) {
	st := Parse("KEY:123-456")
	assert.Equal(t, "123-456", st.Key)
	assert.NotNil(t, st.Notes)
	assert.Empty(t, st.Notes)
	assert.NotNil(t, st.History)
	assert.Empty(t, st.History)

	out, err := st.Encode()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "KEY:123-456", m["key"])
	assert.Equal(t, []any{}, m["notes"])
	assert.Equal(t, []any{}, m["history"])
}

func TestParseMalformedFallsBackToEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json", "plain text notes", "[1,2,3]", "null"} {
		st := Parse(raw)
		assert.Empty(t, st.Key, raw)
		assert.Empty(t, st.Notes, raw)
		assert.Empty(t, st.History, raw)
	}
}

func TestParseStripsPrefixedKey(t *testing.T) {
	st := Parse(`{"key":"KEY:99-1","notes":[]}`)
	assert.Equal(t, "99-1", st.Key)
}

func TestToggleKeepsUnknownFieldsVerbatim(t *testing.T) {
	hours := `{"weekday_text":["Monday: 11:00 AM – 2:00 AM","Tuesday: Closed"],"open_now":true,"note":"<b>&</b>"}`
	raw := `{"key":"1-2","notes":[],"history":[],"activeOpp":false,"businessHours":` + hours + `,"legacyScore":{"a":[1,2.50,"x"]}}`
	st := Parse(raw)

	on, err := st.ToggleFlag(FlagActiveOpp)
	require.NoError(t, err)
	assert.True(t, on)

	out, err := st.Encode()
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, hours, string(m["businessHours"]))
	assert.Equal(t, `{"a":[1,2.50,"x"]}`, string(m["legacyScore"]))
	assert.Equal(t, "true", string(m["activeOpp"]))

	extra, ok := Parse(out).Extra("legacyScore")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":[1,2.5,"x"]}`, string(extra))
}

func TestToggleKeepsUndecodableNotesAndHistory(t *testing.T) {
	uuidNote := `{"id":"6f1c2a9e-3b7d-4c55-9a8e-2f0d1b7c4e10","text":"intro from the old app"}`
	stringTotal := `{"month":"Jan 2024","total":"100.5","rawDate":"2024-01-31T00:00:00.000"}`
	raw := `{"key":"1-2","notes":[` + uuidNote + `,{"id":3,"text":"call back","activity_type":"call"}],` +
		`"history":[` + stringTotal + `,{"month":"Feb 2024","total":200,"rawDate":"2024-02-29T00:00:00.000"}]}`
	st := Parse(raw)
	require.Len(t, st.Notes, 2)
	require.Len(t, st.History, 1, "only the decodable row feeds the forecast")

	_, err := st.ToggleFlag(FlagActiveOpp)
	require.NoError(t, err)
	out, err := st.Encode()
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	var notes, history []json.RawMessage
	require.NoError(t, json.Unmarshal(m["notes"], &notes))
	require.NoError(t, json.Unmarshal(m["history"], &history))
	require.Len(t, notes, 2)
	assert.Equal(t, uuidNote, string(notes[0]))
	require.Len(t, history, 2)
	assert.Equal(t, stringTotal, string(history[0]))
	assert.Contains(t, string(history[1]), `"total":200`)

	back := Parse(out)
	require.NoError(t, back.DeleteNote("6f1c2a9e-3b7d-4c55-9a8e-2f0d1b7c4e10"))
	require.Len(t, back.Notes, 1)
	assert.Equal(t, "3", back.Notes[0].ID.String())
}

func TestWrongShapeFieldsSurviveUntilSet(t *testing.T) {
	st := Parse(`{"venueType":7,"gpvTier":{"v":2},"activeAccount":"yes","notes":"see binder"}`)

	_, err := st.ToggleFlag(FlagActiveOpp)
	require.NoError(t, err)
	out, err := st.Encode()
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, `7`, string(m["venueType"]))
	assert.Equal(t, `{"v":2}`, string(m["gpvTier"]))
	assert.Equal(t, `"yes"`, string(m["activeAccount"]))
	assert.Equal(t, `"see binder"`, string(m["notes"]))

	require.NoError(t, st.SetVenueType(""))
	require.NoError(t, st.SetFlag(FlagActiveAccount, false))
	out, err = st.Encode()
	require.NoError(t, err)
	m = nil
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	_, hasVenue := m["venueType"]
	assert.False(t, hasVenue)
	assert.Equal(t, `false`, string(m["activeAccount"]))
	assert.Equal(t, `{"v":2}`, string(m["gpvTier"]))
}

func TestPassthroughKeepsWhitespace(t *testing.T) {
	score := "{ \"a\" : [1,  2.50],\n  \"b\": \"x\" }"
	hours := "{\"open_now\": true}"
	st := Parse(`{"legacyScore": ` + score + `, "businessHours": ` + hours + `}`)
	require.NoError(t, st.SetFlag(FlagActiveAccount, true))

	out, err := st.Encode()
	require.NoError(t, err)
	assert.Contains(t, out, `"legacyScore":`+score)
	assert.Contains(t, out, `"businessHours":`+hours)
}

func TestKeyWrittenWithPrefix(t *testing.T) {
	st := Parse(`{"key":"1-2"}`)
	out, err := st.Encode()
	require.NoError(t, err)
	assert.Contains(t, out, `"key":"KEY:1-2"`)
	assert.Equal(t, "1-2", Parse(out).Key)
}

func TestEncodeRoundTripsModeledFields(t *testing.T) {
	tier := "tier3"
	st := New()
	st.Key = "17-2"
	st.GPVTier = &tier
	st.VenueType = "bar"
	st.ActiveAccount = true
	st.Manual = true
	st.AIResponse = "Busy patio bar."
	st.SetHistory([]model.MonthlyReceipt{
		{Month: "Feb 2024", Total: 20, RawDate: "2024-02-29T00:00:00.000"},
		{Month: "Jan 2024", Total: 10, RawDate: "2024-01-31T00:00:00.000"},
	})
	out, err := st.Encode()
	require.NoError(t, err)

	back := Parse(out)
	if diff := cmp.Diff(st, back, cmp.AllowUnexported(State{}, ActivityNote{}, rawRow{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Jan 2024", back.History[0].Month)
}

func TestAddNoteTwiceSameTextDistinctIDs(t *testing.T) {
	gen := NewIDGenerator()
	fixed := time.Date(2024, 5, 1, 4, 30, 0, 0, time.UTC)
	gen.now = func() time.Time { return fixed }
	st := New()

	a, err := st.AddNote(gen, "dropped off samples", "visit", fixed, nil)
	require.NoError(t, err)
	b, err := st.AddNote(gen, "dropped off samples", "visit", fixed, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	require.Len(t, st.Notes, 2)
	assert.Equal(t, b.ID, st.Notes[0].ID, "newest first")
}

func TestAddNoteAboveExistingIDs(t *testing.T) {
	gen := NewIDGenerator()
	gen.now = func() time.Time { return time.UnixMilli(1000) }
	st := Parse(`{"notes":[{"id":1700000000000.123,"text":"old","activity_type":"call"}]}`)

	n, err := st.AddNote(gen, "new", "", time.UnixMilli(1000), nil)
	require.NoError(t, err)
	assert.Equal(t, "1700000000001", n.ID.String())
	assert.Equal(t, "note", n.ActivityType)
}

func TestAddNoteLocalDate(t *testing.T) {
	loc := time.FixedZone("CDT", -5*3600)
	st := New()
	at := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	n, err := st.AddNote(NewIDGenerator(), "late call", "call", at, loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-30", n.CreatedLocalDate)
	assert.Equal(t, "2024-05-01T03:00:00.000Z", n.CreatedAt)
}

func TestAddNoteValidation(t *testing.T) {
	st := New()
	_, err := st.AddNote(NewIDGenerator(), "  ", "call", time.Now(), nil)
	assert.ErrorIs(t, err, ErrEmptyNote)
	_, err = st.AddNote(NewIDGenerator(), "x", "skywriting", time.Now(), nil)
	assert.ErrorIs(t, err, ErrUnknownActivity)
}

func TestDeleteNote(t *testing.T) {
	st := Parse(`{"notes":[{"id":3,"text":"c"},{"id":2,"text":"b"},{"id":1.5,"text":"a"}]}`)

	assert.ErrorIs(t, st.DeleteNote("42"), ErrNoChange)
	assert.Len(t, st.Notes, 3)

	require.NoError(t, st.DeleteNote("1.5"))
	require.Len(t, st.Notes, 2)
	assert.Equal(t, "3", st.Notes[0].ID.String())
	assert.Equal(t, "2", st.Notes[1].ID.String())
}

func TestFlagsAndTier(t *testing.T) {
	st := New()
	assert.ErrorIs(t, st.SetFlag("vip", true), ErrUnknownFlag)
	require.NoError(t, st.SetFlag(FlagVenueTypeLocked, true))
	assert.ErrorIs(t, st.SetFlag(FlagVenueTypeLocked, true), ErrNoChange)

	require.NoError(t, st.SetTier("tier2"))
	assert.Equal(t, "tier2", st.Tier())
	assert.ErrorIs(t, st.SetTier("tier2"), ErrNoChange)
	require.NoError(t, st.SetTier(""))
	assert.Equal(t, "", st.Tier())
}

// memRepo is a single-account repo whose CAS can be made to lose races.
type memRepo struct {
	mu        sync.Mutex
	notes     string
	loseCount int
	writes    int
}

func (r *memRepo) GetAccount(_ context.Context, _, id string) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "a1" {
		return model.Account{}, errors.New("not found")
	}
	return model.Account{ID: id, Notes: r.notes}, nil
}

func (r *memRepo) CompareAndSwapNotes(_ context.Context, _, _, prev, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loseCount > 0 {
		r.loseCount--
		// a concurrent writer added a field in between
		st := Parse(r.notes)
		_ = st.SetVenueType("bar")
		r.notes, _ = st.Encode()
		return false, nil
	}
	if r.notes != prev {
		return false, nil
	}
	r.notes = next
	r.writes++
	return true, nil
}

func TestMergerRetriesOnConflict(t *testing.T) {
	repo := &memRepo{notes: "KEY:5-6", loseCount: 2}
	m := NewMerger(repo, nil)

	st, err := m.Update(context.Background(), "u", "a1", func(s *State) error {
		return s.SetFlag(FlagActiveOpp, true)
	})
	require.NoError(t, err)
	assert.True(t, st.ActiveOpp)

	final := Parse(repo.notes)
	assert.True(t, final.ActiveOpp)
	assert.Equal(t, "bar", final.VenueType, "concurrent write survives")
	assert.Equal(t, "5-6", final.Key)
	assert.Equal(t, 1, repo.writes)
}

func TestMergerGivesUp(t *testing.T) {
	repo := &memRepo{notes: "{}", loseCount: 100}
	m := NewMerger(repo, nil)
	m.MaxAttempts = 3
	_, err := m.Update(context.Background(), "u", "a1", func(s *State) error {
		_, err := s.ToggleFlag(FlagActiveAccount)
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMergerNoChangeSkipsWrite(t *testing.T) {
	repo := &memRepo{notes: `{"notes":[]}`}
	m := NewMerger(repo, nil)
	_, err := m.Update(context.Background(), "u", "a1", func(s *State) error { return s.DeleteNote("7") })
	require.NoError(t, err)
	assert.Equal(t, 0, repo.writes)
	assert.Equal(t, `{"notes":[]}`, repo.notes)
}
