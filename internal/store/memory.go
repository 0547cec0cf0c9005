package store

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "prospector/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    now      func() time.Time
    accounts map[string]model.Account    // id -> account
    routes   map[string]model.SavedRoute // id -> saved route
}

func NewMemory() *Memory {
    return &Memory{
        now:      time.Now,
        accounts: map[string]model.Account{},
        routes:   map[string]model.SavedRoute{},
    }
}

func validateAccount(in model.AccountIn) error {
    if strings.TrimSpace(in.Name) == "" {
        return fmt.Errorf("%w: name is required", ErrInvalid)
    }
    return nil
}

func (m *Memory) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Account{}
    for _, a := range m.accounts {
        if a.UserID == userID { out = append(out, a) }
    }
    sort.SliceStable(out, func(i, j int) bool {
        if out[i].CreatedAt.Equal(out[j].CreatedAt) { return out[i].ID > out[j].ID }
        return out[i].CreatedAt.After(out[j].CreatedAt)
    })
    return out, nil
}

func (m *Memory) CreateAccount(ctx context.Context, userID string, in model.AccountIn) (model.Account, error) {
    if err := validateAccount(in); err != nil { return model.Account{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    a := model.Account{
        ID:        uuid.New().String(),
        UserID:    userID,
        Name:      strings.TrimSpace(in.Name),
        Address:   in.Address,
        Lat:       in.Lat,
        Lng:       in.Lng,
        Notes:     in.Notes,
        CreatedAt: m.now().UTC(),
    }
    m.accounts[a.ID] = a
    return a, nil
}

// get returns the caller's account; other users' rows are reported missing.
func (m *Memory) get(userID, id string) (model.Account, bool) {
    a, ok := m.accounts[id]
    if !ok || a.UserID != userID { return model.Account{}, false }
    return a, true
}

func (m *Memory) GetAccount(ctx context.Context, userID, id string) (model.Account, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.get(userID, id)
    if !ok { return model.Account{}, ErrNotFound }
    return a, nil
}

func (m *Memory) PatchAccount(ctx context.Context, userID, id string, patch model.AccountPatch) (model.Account, error) {
    if patch.Empty() { return model.Account{}, fmt.Errorf("%w: no fields to update", ErrInvalid) }
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.get(userID, id)
    if !ok { return model.Account{}, ErrNotFound }
    if patch.Lat != nil { v := *patch.Lat; a.Lat = &v }
    if patch.Lng != nil { v := *patch.Lng; a.Lng = &v }
    if patch.Notes != nil { a.Notes = *patch.Notes }
    m.accounts[id] = a
    return a, nil
}

func (m *Memory) DeleteAccount(ctx context.Context, userID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.get(userID, id); !ok { return ErrNotFound }
    delete(m.accounts, id)
    return nil
}

func (m *Memory) CompareAndSwapNotes(ctx context.Context, userID, id, prev, next string) (bool, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    a, ok := m.get(userID, id)
    if !ok { return false, ErrNotFound }
    if a.Notes != prev { return false, nil }
    a.Notes = next
    m.accounts[id] = a
    return true, nil
}

func (m *Memory) ListSavedRoutes(ctx context.Context, userID string) ([]model.SavedRoute, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.SavedRoute{}
    for _, r := range m.routes {
        if r.UserID == userID { out = append(out, r) }
    }
    sort.SliceStable(out, func(i, j int) bool {
        if out[i].CreatedAt.Equal(out[j].CreatedAt) { return out[i].ID > out[j].ID }
        return out[i].CreatedAt.After(out[j].CreatedAt)
    })
    return out, nil
}

func validateRoute(in model.SavedRouteIn) error {
    if strings.TrimSpace(in.Name) == "" {
        return fmt.Errorf("%w: name is required", ErrInvalid)
    }
    if len(in.RouteData.Accounts) == 0 {
        return fmt.Errorf("%w: route_data.accounts is required", ErrInvalid)
    }
    return nil
}

func (m *Memory) CreateSavedRoute(ctx context.Context, userID string, in model.SavedRouteIn) (model.SavedRoute, error) {
    if err := validateRoute(in); err != nil { return model.SavedRoute{}, err }
    m.mu.Lock(); defer m.mu.Unlock()
    r := model.SavedRoute{
        ID:        uuid.New().String(),
        UserID:    userID,
        Name:      strings.TrimSpace(in.Name),
        RouteData: in.RouteData,
        CreatedAt: m.now().UTC(),
    }
    r.RouteData.Accounts = append([]model.Waypoint(nil), in.RouteData.Accounts...)
    m.routes[r.ID] = r
    return r, nil
}

func (m *Memory) DeleteSavedRoute(ctx context.Context, userID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[id]
    if !ok || r.UserID != userID { return ErrNotFound }
    delete(m.routes, id)
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
