package store

import (
    "context"
    "errors"

    "prospector/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Accounts
    ListAccounts(ctx context.Context, userID string) ([]model.Account, error)
    CreateAccount(ctx context.Context, userID string, in model.AccountIn) (model.Account, error)
    GetAccount(ctx context.Context, userID, id string) (model.Account, error)
    PatchAccount(ctx context.Context, userID, id string, patch model.AccountPatch) (model.Account, error)
    DeleteAccount(ctx context.Context, userID, id string) error
    // CompareAndSwapNotes replaces notes only while they still equal prev.
    // It reports false when another writer changed them first.
    CompareAndSwapNotes(ctx context.Context, userID, id, prev, next string) (bool, error)

    // Saved routes
    ListSavedRoutes(ctx context.Context, userID string) ([]model.SavedRoute, error)
    CreateSavedRoute(ctx context.Context, userID string, in model.SavedRouteIn) (model.SavedRoute, error)
    DeleteSavedRoute(ctx context.Context, userID, id string) error

    Ping(ctx context.Context) error
}

var (
    ErrNotFound = errors.New("not found")
    // ErrInvalid wraps input the store refuses to persist.
    ErrInvalid = errors.New("invalid input")
)
