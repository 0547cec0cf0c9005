package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/model"
)

func newClockedMemory() *Memory {
	m := NewMemory()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	m.now = func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Minute)
	}
	return m
}

func TestMemoryAccountsNewestFirstAndScoped(t *testing.T) {
	ctx := context.Background()
	m := newClockedMemory()
	a, err := m.CreateAccount(ctx, "u1", model.AccountIn{Name: "First"})
	require.NoError(t, err)
	b, err := m.CreateAccount(ctx, "u1", model.AccountIn{Name: " Second "})
	require.NoError(t, err)
	_, err = m.CreateAccount(ctx, "u2", model.AccountIn{Name: "Other"})
	require.NoError(t, err)

	list, err := m.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, "Second", list[0].Name)
	assert.Equal(t, a.ID, list[1].ID)

	_, err = m.GetAccount(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCreateRequiresName(t *testing.T) {
	_, err := NewMemory().CreateAccount(context.Background(), "u", model.AccountIn{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMemoryPatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, err := m.CreateAccount(ctx, "u", model.AccountIn{Name: "Bar", Notes: "KEY:1-2"})
	require.NoError(t, err)

	_, err = m.PatchAccount(ctx, "u", a.ID, model.AccountPatch{})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = m.PatchAccount(ctx, "u", "missing", model.AccountPatch{Lat: ptr(1.0)})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := m.PatchAccount(ctx, "u", a.ID, model.AccountPatch{Lat: ptr(30.1), Lng: ptr(-97.2)})
	require.NoError(t, err)
	require.NotNil(t, got.Lat)
	assert.Equal(t, 30.1, *got.Lat)
	assert.Equal(t, -97.2, *got.Lng)
	assert.Equal(t, "KEY:1-2", got.Notes, "untouched")
}

func TestMemoryCompareAndSwapNotes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, err := m.CreateAccount(ctx, "u", model.AccountIn{Name: "Bar", Notes: "v1"})
	require.NoError(t, err)

	ok, err := m.CompareAndSwapNotes(ctx, "u", a.ID, "stale", "v2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndSwapNotes(ctx, "u", a.ID, "v1", "v2")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.GetAccount(ctx, "u", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Notes)

	_, err = m.CompareAndSwapNotes(ctx, "other", a.ID, "v2", "v3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, err := m.CreateAccount(ctx, "u", model.AccountIn{Name: "Bar"})
	require.NoError(t, err)
	assert.ErrorIs(t, m.DeleteAccount(ctx, "x", a.ID), ErrNotFound)
	require.NoError(t, m.DeleteAccount(ctx, "u", a.ID))
	assert.ErrorIs(t, m.DeleteAccount(ctx, "u", a.ID), ErrNotFound)
}

func TestMemorySavedRoutes(t *testing.T) {
	ctx := context.Background()
	m := newClockedMemory()
	data := model.RouteData{Accounts: []model.Waypoint{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, Distance: 1200, Duration: 300}

	_, err := m.CreateSavedRoute(ctx, "u", model.SavedRouteIn{Name: "Tuesday"})
	assert.ErrorIs(t, err, ErrInvalid)

	r1, err := m.CreateSavedRoute(ctx, "u", model.SavedRouteIn{Name: "Tuesday", RouteData: data})
	require.NoError(t, err)
	r2, err := m.CreateSavedRoute(ctx, "u", model.SavedRouteIn{Name: "Wednesday", RouteData: data})
	require.NoError(t, err)

	list, err := m.ListSavedRoutes(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r2.ID, list[0].ID)
	assert.Equal(t, data, list[1].RouteData)

	require.NoError(t, m.DeleteSavedRoute(ctx, "u", r1.ID))
	assert.ErrorIs(t, m.DeleteSavedRoute(ctx, "u", r1.ID), ErrNotFound)
	list, err = m.ListSavedRoutes(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func ptr(f float64) *float64 { return &f }
