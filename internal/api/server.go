package api

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "prospector/internal/accountstate"
    "prospector/internal/auth"
    "prospector/internal/config"
    "prospector/internal/metrics"
    "prospector/internal/model"
    "prospector/internal/route"
    "prospector/internal/store"
    "prospector/internal/upstream"
)

// RecordSource is the public receipts dataset.
type RecordSource interface {
    Search(ctx context.Context, q, city string, limit int) ([]model.ReceiptRecord, error)
    Top(ctx context.Context, tq upstream.TopQuery) ([]model.ReceiptRecord, error)
    History(ctx context.Context, key string) ([]model.MonthlyReceipt, error)
}

// PlaceSource is the geocoding and places provider.
type PlaceSource interface {
    Geocode(ctx context.Context, address string) (model.GeocodeResult, error)
    SearchPlaces(ctx context.Context, query string) ([]model.Place, error)
    PlaceDetails(ctx context.Context, placeID string) (model.PlaceDetails, error)
}

type ProspectSource interface {
    Prospects(ctx context.Context) ([]model.SheetProspect, error)
}

type IntelSource interface {
    Summarize(ctx context.Context, name, address string) (string, error)
}

// Server holds the handler dependencies. Nil sources turn their endpoints into 503s.
type Server struct {
    Store   store.Store
    Auth    *auth.Verifier
    Broker  EventBroker
    Merger  *accountstate.Merger
    NoteIDs *accountstate.IDGenerator
    Planner *route.Planner
    Records RecordSource
    Places  PlaceSource
    Sheets  ProspectSource
    Intel   IntelSource
    // Loc is the zone a note's local date is computed in.
    Loc *time.Location
    Log *zap.Logger

    // FanOut bounds concurrent history lookups on /top-accounts.
    FanOut    int
    Heartbeat time.Duration

    now func() time.Time
}

// NewServer wires a server around st with offline routing, dev auth and an
// in-memory broker. Callers replace fields to enable upstream providers.
func NewServer(st store.Store, log *zap.Logger) *Server {
    if log == nil {
        log = zap.NewNop()
    }
    return &Server{
        Store:     st,
        Auth:      auth.NewVerifier("dev", ""),
        Broker:    NewBroker(),
        Merger:    accountstate.NewMerger(st, log),
        NoteIDs:   accountstate.NewIDGenerator(),
        Planner:   route.NewPlanner(nil, log),
        Loc:       time.UTC,
        Log:       log,
        FanOut:    8,
        Heartbeat: 15 * time.Second,
        now:       time.Now,
    }
}

// NewFromConfig builds a server from cfg. Postgres is used when DATABASE_URL
// is set, otherwise the in-memory store.
func NewFromConfig(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
    if log == nil {
        log = zap.NewNop()
    }
    var st store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        log.Warn("DATABASE_URL not set; using in-memory store")
        st = store.NewMemory()
    } else {
        pg, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, fmt.Errorf("open postgres: %w", err)
        }
        if cfg.DBMigrate {
            if err := pg.Migrate(ctx); err != nil {
                _ = pg.Close()
                return nil, fmt.Errorf("migrate: %w", err)
            }
        }
        st = pg
    }

    s := NewServer(st, log)
    s.Auth = auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret)
    s.Loc = cfg.Location()

    var cache upstream.Cache = upstream.NewMemoryCache()
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL, log); err == nil {
            s.Broker = rb
        } else {
            log.Warn("redis broker unavailable; using in-memory broker", zap.Error(err))
        }
        if rc, err := upstream.NewRedisCache(cfg.RedisURL); err == nil {
            cache = rc
        } else {
            log.Warn("redis cache unavailable; using in-memory cache", zap.Error(err))
        }
    }
    ttl := cfg.GetCacheTTL()

    soc := upstream.NewSocrata(cfg.Socrata.Dataset, cfg.Socrata.AppToken, upstream.NewLimiter(cfg.UpstreamRPS))
    soc.Cache, soc.CacheTTL = cache, ttl
    s.Records = soc

    if key := cfg.Google.MapsAPIKey; key != "" {
        maps := upstream.NewMaps(key, upstream.NewLimiter(cfg.UpstreamRPS))
        maps.Cache, maps.CacheTTL = cache, ttl
        s.Places = maps
        s.Planner = route.NewPlanner(maps, log)
    } else {
        log.Info("GOOGLE_MAPS_API_KEY not set; routes are planned offline")
    }
    if cfg.Sheets.ID != "" {
        s.Sheets = upstream.NewSheets(cfg.Google.MapsAPIKey, cfg.Sheets.ID, cfg.Sheets.Range, upstream.NewLimiter(cfg.UpstreamRPS))
    }
    if cfg.Gemini.APIKey != "" {
        gen, err := upstream.NewGenAIGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
        if err != nil {
            log.Warn("intel generator unavailable", zap.Error(err))
        } else {
            s.Intel = upstream.NewIntel(gen, log)
        }
    }
    return s, nil
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
    var first error
    for _, v := range []any{s.Broker, s.Store} {
        if c, ok := v.(io.Closer); ok {
            if err := c.Close(); err != nil && first == nil {
                first = err
            }
        }
    }
    return first
}

// Routes returns the full HTTP handler.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    mux.HandleFunc("/accounts", s.AccountsHandler)
    mux.HandleFunc("/accounts/export", s.ExportHandler)
    mux.HandleFunc("/account-state", s.AccountStateHandler)
    mux.HandleFunc("/notes", s.NotesHandler)
    mux.HandleFunc("/forecast", s.ForecastHandler)

    mux.HandleFunc("/search", s.SearchHandler)
    mux.HandleFunc("/top-accounts", s.TopAccountsHandler)
    mux.HandleFunc("/history", s.HistoryHandler)

    mux.HandleFunc("/route", s.RouteHandler)
    mux.HandleFunc("/saved-routes", s.SavedRoutesHandler)

    mux.HandleFunc("/geocode", s.GeocodeHandler)
    mux.HandleFunc("/places", s.PlacesHandler)
    mux.HandleFunc("/place-details", s.PlaceDetailsHandler)
    mux.HandleFunc("/intel", s.IntelHandler)
    mux.HandleFunc("/sheet-accounts", s.SheetAccountsHandler)

    mux.HandleFunc("/events", s.EventsHandler)
    mux.HandleFunc("/ws", s.WSHandler)

    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    return s.logMiddleware(metricsMiddleware(mux))
}
