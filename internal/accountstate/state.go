// Package accountstate models the JSON blob stored in an account's notes column.
//
// The blob is shared with older clients, so decoding keeps every key it does not
// model and encoding writes those keys back untouched. Callers never edit the raw
// string directly; they parse, apply one mutation, and encode the whole object.
package accountstate

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"prospector/internal/model"
)

// LegacyKeyPrefix marks the pre-JSON notes format and prefixed key values.
const LegacyKeyPrefix = "KEY:"

// Field names as they appear in the stored blob.
const (
	fieldKey             = "key"
	fieldNotes           = "notes"
	fieldHistory         = "history"
	fieldGPVTier         = "gpvTier"
	fieldActiveOpp       = "activeOpp"
	fieldActiveAccount   = "activeAccount"
	fieldVenueTypeLocked = "venueTypeLocked"
	fieldVenueType       = "venueType"
	fieldAIResponse      = "aiResponse"
	fieldManual          = "manual"
	fieldBusinessHours   = "businessHours"
)

// State is the typed view of the notes blob.
type State struct {
	Key             string
	Notes           []ActivityNote
	History         []model.MonthlyReceipt
	GPVTier         *string
	ActiveOpp       bool
	ActiveAccount   bool
	VenueTypeLocked bool
	VenueType       string
	AIResponse      string
	Manual          bool
	BusinessHours   json.RawMessage

	// extra holds keys this package does not model, verbatim.
	extra map[string]json.RawMessage
	// invalid holds modeled keys whose stored value had the wrong shape. They
	// are written back as found until a mutation sets the field.
	invalid map[string]json.RawMessage
	// badHistory holds history rows that did not decode, at their original index.
	badHistory []rawRow
}

type rawRow struct {
	index int
	raw   json.RawMessage
}

// New returns an empty state with non-nil lists.
func New() *State {
	return &State{Notes: []ActivityNote{}, History: []model.MonthlyReceipt{}}
}

// Parse decodes a stored notes value. It never fails: malformed input yields an
// empty state, and a legacy "KEY:<key>" string is recovered as the key.
func Parse(raw string) *State {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		st := New()
		if err := json.Unmarshal([]byte(trimmed), st); err == nil {
			return st
		}
	}
	st := New()
	if strings.HasPrefix(trimmed, LegacyKeyPrefix) {
		st.Key = strings.TrimSpace(strings.TrimPrefix(trimmed, LegacyKeyPrefix))
	}
	return st
}

// Encode serializes the full object, modeled fields and passthrough keys alike.
func (s *State) Encode() (string, error) {
	b, err := s.encode()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Extra returns the raw value of an unmodeled key.
func (s *State) Extra(name string) (json.RawMessage, bool) {
	v, ok := s.extra[name]
	return v, ok
}

func (s *State) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = *New()
	for k, v := range m {
		v = append(json.RawMessage(nil), v...)
		modeled, ok := s.decodeField(k, v)
		switch {
		case !modeled:
			if s.extra == nil {
				s.extra = map[string]json.RawMessage{}
			}
			s.extra[k] = v
		case !ok:
			if s.invalid == nil {
				s.invalid = map[string]json.RawMessage{}
			}
			s.invalid[k] = v
		}
	}
	return nil
}

// decodeField fills a modeled field. modeled reports whether k is a modeled
// key and ok whether its value had the expected shape.
func (s *State) decodeField(k string, v json.RawMessage) (modeled, ok bool) {
	isNull := bytes.Equal(v, []byte("null"))
	switch k {
	case fieldKey:
		var key string
		if json.Unmarshal(v, &key) != nil {
			return true, false
		}
		s.Key = strings.TrimPrefix(key, LegacyKeyPrefix)
	case fieldNotes:
		var notes []ActivityNote
		if json.Unmarshal(v, &notes) != nil {
			return true, false
		}
		if notes != nil {
			s.Notes = notes
		}
	case fieldHistory:
		var rows []json.RawMessage
		if json.Unmarshal(v, &rows) != nil {
			return true, false
		}
		for i, row := range rows {
			var r model.MonthlyReceipt
			if err := json.Unmarshal(row, &r); err != nil {
				s.badHistory = append(s.badHistory, rawRow{index: i, raw: row})
				continue
			}
			s.History = append(s.History, r)
		}
	case fieldGPVTier:
		var tier *string
		if json.Unmarshal(v, &tier) != nil {
			return true, false
		}
		if tier != nil && *tier != "" {
			s.GPVTier = tier
		}
	case fieldActiveOpp:
		return true, isNull || json.Unmarshal(v, &s.ActiveOpp) == nil
	case fieldActiveAccount:
		return true, isNull || json.Unmarshal(v, &s.ActiveAccount) == nil
	case fieldVenueTypeLocked:
		return true, isNull || json.Unmarshal(v, &s.VenueTypeLocked) == nil
	case fieldVenueType:
		return true, isNull || json.Unmarshal(v, &s.VenueType) == nil
	case fieldAIResponse:
		return true, isNull || json.Unmarshal(v, &s.AIResponse) == nil
	case fieldManual:
		return true, isNull || json.Unmarshal(v, &s.Manual) == nil
	case fieldBusinessHours:
		if !isNull {
			s.BusinessHours = v
		}
	default:
		return false, false
	}
	return true, true
}

// touch marks a modeled field as set by a mutation, dropping any raw value
// it was carrying.
func (s *State) touch(field string) {
	delete(s.invalid, field)
	if field == fieldHistory {
		s.badHistory = nil
	}
}

func (s *State) MarshalJSON() ([]byte, error) { return s.encode() }

// encode writes the object with sorted keys. Raw values are copied as stored,
// whitespace included; modeled values are marshaled without HTML escaping.
func (s *State) encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+11)
	for k, v := range s.extra {
		out[k] = v
	}
	set := func(k string, v any) error {
		b, err := marshal(v)
		if err != nil {
			return err
		}
		out[k] = b
		return nil
	}

	notes := s.Notes
	if notes == nil {
		notes = []ActivityNote{}
	}
	hist, err := s.historyJSON()
	if err != nil {
		return nil, err
	}
	out[fieldHistory] = hist
	if s.Key != "" {
		if err := set(fieldKey, LegacyKeyPrefix+s.Key); err != nil {
			return nil, err
		}
	}
	for k, v := range map[string]any{
		fieldNotes:           notes,
		fieldGPVTier:         s.GPVTier,
		fieldActiveOpp:       s.ActiveOpp,
		fieldActiveAccount:   s.ActiveAccount,
		fieldVenueTypeLocked: s.VenueTypeLocked,
	} {
		if err := set(k, v); err != nil {
			return nil, err
		}
	}
	if s.VenueType != "" {
		if err := set(fieldVenueType, s.VenueType); err != nil {
			return nil, err
		}
	}
	if s.AIResponse != "" {
		if err := set(fieldAIResponse, s.AIResponse); err != nil {
			return nil, err
		}
	}
	if s.Manual {
		out[fieldManual] = json.RawMessage("true")
	}
	if len(s.BusinessHours) > 0 {
		out[fieldBusinessHours] = s.BusinessHours
	}
	for k, v := range s.invalid {
		out[k] = v
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(out[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// historyJSON writes the decoded rows with undecodable rows back in place.
func (s *State) historyJSON() (json.RawMessage, error) {
	if len(s.badHistory) == 0 {
		hist := s.History
		if hist == nil {
			hist = []model.MonthlyReceipt{}
		}
		return marshal(hist)
	}
	rows := make([]json.RawMessage, 0, len(s.History)+len(s.badHistory))
	bad := s.badHistory
	for _, r := range s.History {
		for len(bad) > 0 && bad[0].index <= len(rows) {
			rows, bad = append(rows, bad[0].raw), bad[1:]
		}
		b, err := marshal(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, b)
	}
	for _, b := range bad {
		rows = append(rows, b.raw)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(r)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
