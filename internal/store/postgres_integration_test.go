//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "prospector/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    a, err := p.CreateAccount(t.Context(), "it_user", model.AccountIn{Name: "Integration Bar", Notes: "KEY:1-2"})
    if err != nil { t.Fatalf("CreateAccount: %v", err) }
    defer func() { _ = p.DeleteAccount(t.Context(), "it_user", a.ID) }()

    ok, err := p.CompareAndSwapNotes(t.Context(), "it_user", a.ID, "stale", "{}")
    if err != nil || ok { t.Fatalf("stale CAS should lose: ok=%v err=%v", ok, err) }
    ok, err = p.CompareAndSwapNotes(t.Context(), "it_user", a.ID, "KEY:1-2", "{}")
    if err != nil || !ok { t.Fatalf("CAS should win: ok=%v err=%v", ok, err) }
}
