package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"prospector/internal/accountstate"
	"prospector/internal/forecast"
)

// patchableFields are the account-state keys PATCH /account-state accepts.
var patchableFields = []string{
	accountstate.FlagActiveOpp,
	accountstate.FlagActiveAccount,
	accountstate.FlagVenueTypeLocked,
	"gpvTier",
	"venueType",
	"businessHours",
	"aiResponse",
}

// parseStatePatch turns a single-field PATCH body into one state mutation.
// Flags accept a boolean or the string "toggle".
func parseStatePatch(body map[string]json.RawMessage) (string, func(*accountstate.State) error, error) {
	if len(body) != 1 {
		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", nil, fmt.Errorf("%w: exactly one of %s is required, got [%s]",
			errBadRequest, strings.Join(patchableFields, ", "), strings.Join(keys, ", "))
	}
	var field string
	var raw json.RawMessage
	for k, v := range body {
		field, raw = k, v
	}

	switch field {
	case accountstate.FlagActiveOpp, accountstate.FlagActiveAccount, accountstate.FlagVenueTypeLocked:
		var toggle string
		if err := json.Unmarshal(raw, &toggle); err == nil {
			if toggle != "toggle" {
				return "", nil, fmt.Errorf("%w: %s must be a boolean or \"toggle\"", errBadRequest, field)
			}
			return field, func(st *accountstate.State) error {
				_, err := st.ToggleFlag(field)
				return err
			}, nil
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", nil, fmt.Errorf("%w: %s must be a boolean", errBadRequest, field)
		}
		return field, func(st *accountstate.State) error { return st.SetFlag(field, v) }, nil

	case "gpvTier":
		var tier *string
		if err := json.Unmarshal(raw, &tier); err != nil {
			return "", nil, fmt.Errorf("%w: gpvTier must be a string or null", errBadRequest)
		}
		t := ""
		if tier != nil {
			t = *tier
		}
		if t != "" && !forecast.ValidTier(t) {
			return "", nil, fmt.Errorf("%w: unknown tier %q", errBadRequest, t)
		}
		return field, func(st *accountstate.State) error { return st.SetTier(t) }, nil

	case "venueType":
		var vt string
		if err := json.Unmarshal(raw, &vt); err != nil {
			return "", nil, fmt.Errorf("%w: venueType must be a string", errBadRequest)
		}
		if vt != "" {
			if _, _, err := forecast.Profile(vt); err != nil {
				return "", nil, err
			}
		}
		return field, func(st *accountstate.State) error { return st.SetVenueType(vt) }, nil

	case "businessHours":
		if !json.Valid(raw) {
			return "", nil, fmt.Errorf("%w: businessHours must be JSON", errBadRequest)
		}
		hours := append(json.RawMessage(nil), raw...)
		return field, func(st *accountstate.State) error { return st.SetBusinessHours(hours) }, nil

	case "aiResponse":
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", nil, fmt.Errorf("%w: aiResponse must be a string", errBadRequest)
		}
		return field, func(st *accountstate.State) error { return st.SetAIResponse(text) }, nil
	}
	return "", nil, fmt.Errorf("%w: %s", accountstate.ErrUnknownFlag, field)
}
