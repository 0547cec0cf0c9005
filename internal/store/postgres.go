package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "sort"
    "strings"

    _ "github.com/jackc/pgx/v5/stdlib"
    "github.com/google/uuid"

    "prospector/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
    sub, err := fs.Sub(migrationFS, "migrations")
    if err != nil { return err }
    return p.migrateFS(ctx, sub)
}

// MigrateDir applies *.sql files from a directory on disk.
func (p *Postgres) MigrateDir(dir string) error {
    return p.migrateFS(context.Background(), os.DirFS(dir))
}

// migrateFS runs every not-yet-applied *.sql file in name order, each in its own transaction.
func (p *Postgres) migrateFS(ctx context.Context, fsys fs.FS) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("create schema_migrations: %w", err)
    }
    names, err := fs.Glob(fsys, "*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        var done bool
        if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&done); err != nil {
            return err
        }
        if done { continue }
        body, err := fs.ReadFile(fsys, name)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migration %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

// validID reports whether id can be compared against a uuid column.
func validID(id string) bool {
    _, err := uuid.Parse(id)
    return err == nil
}

const accountCols = `id::text, user_id, name, address, lat, lng, notes, created_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(row rowScanner) (model.Account, error) {
    var a model.Account
    var lat, lng sql.NullFloat64
    if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Address, &lat, &lng, &a.Notes, &a.CreatedAt); err != nil {
        return a, err
    }
    a.Lat = floatPtr(lat)
    a.Lng = floatPtr(lng)
    return a, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
    if !v.Valid { return nil }
    f := v.Float64
    return &f
}

func nullFloat(v *float64) any { if v == nil { return nil }; return *v }

func (p *Postgres) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Account{}
    for rows.Next() {
        a, err := scanAccount(rows)
        if err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateAccount(ctx context.Context, userID string, in model.AccountIn) (model.Account, error) {
    if err := validateAccount(in); err != nil { return model.Account{}, err }
    row := p.db.QueryRowContext(ctx, `INSERT INTO accounts (id, user_id, name, address, lat, lng, notes) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+accountCols,
        uuid.New(), userID, strings.TrimSpace(in.Name), in.Address, nullFloat(in.Lat), nullFloat(in.Lng), in.Notes)
    return scanAccount(row)
}

func (p *Postgres) GetAccount(ctx context.Context, userID, id string) (model.Account, error) {
    if !validID(id) { return model.Account{}, ErrNotFound }
    a, err := scanAccount(p.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id=$1 AND user_id=$2`, id, userID))
    if errors.Is(err, sql.ErrNoRows) { return model.Account{}, ErrNotFound }
    return a, err
}

func (p *Postgres) PatchAccount(ctx context.Context, userID, id string, patch model.AccountPatch) (model.Account, error) {
    if patch.Empty() { return model.Account{}, fmt.Errorf("%w: no fields to update", ErrInvalid) }
    if !validID(id) { return model.Account{}, ErrNotFound }
    sets := []string{}
    args := []any{id, userID}
    add := func(col string, v any) {
        args = append(args, v)
        sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
    }
    if patch.Lat != nil { add("lat", *patch.Lat) }
    if patch.Lng != nil { add("lng", *patch.Lng) }
    if patch.Notes != nil { add("notes", *patch.Notes) }
    q := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 AND user_id=$2 RETURNING ` + accountCols
    a, err := scanAccount(p.db.QueryRowContext(ctx, q, args...))
    if errors.Is(err, sql.ErrNoRows) { return model.Account{}, ErrNotFound }
    return a, err
}

func (p *Postgres) DeleteAccount(ctx context.Context, userID, id string) error {
    if !validID(id) { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE id=$1 AND user_id=$2`, id, userID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) CompareAndSwapNotes(ctx context.Context, userID, id, prev, next string) (bool, error) {
    if !validID(id) { return false, ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE accounts SET notes=$1 WHERE id=$2 AND user_id=$3 AND notes IS NOT DISTINCT FROM $4`, next, id, userID, prev)
    if err != nil { return false, err }
    if n, _ := res.RowsAffected(); n == 1 { return true, nil }
    // distinguish a lost race from a missing row
    if _, err := p.GetAccount(ctx, userID, id); err != nil { return false, err }
    return false, nil
}

func (p *Postgres) ListSavedRoutes(ctx context.Context, userID string) ([]model.SavedRoute, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, user_id, name, route_data, created_at FROM saved_routes WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.SavedRoute{}
    for rows.Next() {
        var r model.SavedRoute
        var data []byte
        if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &data, &r.CreatedAt); err != nil { return nil, err }
        if len(data) > 0 {
            if err := json.Unmarshal(data, &r.RouteData); err != nil {
                return nil, fmt.Errorf("saved route %s: %w", r.ID, err)
            }
        }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateSavedRoute(ctx context.Context, userID string, in model.SavedRouteIn) (model.SavedRoute, error) {
    if err := validateRoute(in); err != nil { return model.SavedRoute{}, err }
    data, err := json.Marshal(in.RouteData)
    if err != nil { return model.SavedRoute{}, err }
    r := model.SavedRoute{UserID: userID, Name: strings.TrimSpace(in.Name), RouteData: in.RouteData}
    err = p.db.QueryRowContext(ctx, `INSERT INTO saved_routes (id, user_id, name, route_data) VALUES ($1,$2,$3,$4) RETURNING id::text, created_at`,
        uuid.New(), userID, r.Name, string(data)).Scan(&r.ID, &r.CreatedAt)
    return r, err
}

func (p *Postgres) DeleteSavedRoute(ctx context.Context, userID, id string) error {
    if !validID(id) { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM saved_routes WHERE id=$1 AND user_id=$2`, id, userID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}
