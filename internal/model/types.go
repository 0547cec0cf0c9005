package model

import "time"

// Core domain types shared by the store, handlers and planners.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// Account is a saved prospect row. Notes holds the serialized account state blob.
type Account struct {
    ID        string    `json:"id"`
    UserID    string    `json:"user_id"`
    Name      string    `json:"name"`
    Address   string    `json:"address"`
    Lat       *float64  `json:"lat"`
    Lng       *float64  `json:"lng"`
    Notes     string    `json:"notes"`
    CreatedAt time.Time `json:"created_at"`
}

type AccountIn struct {
    Name    string   `json:"name"`
    Address string   `json:"address"`
    Lat     *float64 `json:"lat,omitempty"`
    Lng     *float64 `json:"lng,omitempty"`
    Notes   string   `json:"notes,omitempty"`
}

// AccountPatch carries the PATCH /accounts fields; nil means untouched.
type AccountPatch struct {
    Lat   *float64 `json:"lat,omitempty"`
    Lng   *float64 `json:"lng,omitempty"`
    Notes *string  `json:"notes,omitempty"`
}

func (p AccountPatch) Empty() bool { return p.Lat == nil && p.Lng == nil && p.Notes == nil }

// MonthlyReceipt is one month of reported mixed-beverage receipts.
type MonthlyReceipt struct {
    Month   string  `json:"month"`
    Liquor  float64 `json:"liquor"`
    Beer    float64 `json:"beer"`
    Wine    float64 `json:"wine"`
    Total   float64 `json:"total"`
    RawDate string  `json:"rawDate"`
}

// Waypoint is a stop handed to the route planner.
type Waypoint struct {
    ID      string  `json:"id,omitempty"`
    Name    string  `json:"name"`
    Address string  `json:"address,omitempty"`
    Lat     float64 `json:"lat"`
    Lng     float64 `json:"lng"`
}

type RouteRequest struct {
    Origin    *GeoPoint  `json:"origin,omitempty"`
    Waypoints []Waypoint `json:"waypoints"`
}

type RouteLeg struct {
    StartAddress string `json:"start_address,omitempty"`
    EndAddress   string `json:"end_address,omitempty"`
    DistanceM    int    `json:"distance"`
    DurationSec  int    `json:"duration"`
}

type RouteResult struct {
    Distance      int        `json:"distance"`
    Duration      int        `json:"duration"`
    Polyline      string     `json:"polyline"`
    WaypointOrder []int      `json:"waypoint_order"`
    Legs          []RouteLeg `json:"legs"`
    Path          []GeoPoint `json:"path"`
    Waypoints     []Waypoint `json:"waypoints"`
    Warning       string     `json:"warning,omitempty"`
    Provider      string     `json:"provider"`
}

// RouteData is the persisted body of a saved route.
type RouteData struct {
    Accounts []Waypoint `json:"accounts"`
    Distance int        `json:"distance"`
    Duration int        `json:"duration"`
    Polyline string     `json:"polyline"`
}

type SavedRoute struct {
    ID        string    `json:"id"`
    UserID    string    `json:"user_id"`
    Name      string    `json:"name"`
    RouteData RouteData `json:"route_data"`
    CreatedAt time.Time `json:"created_at"`
}

type SavedRouteIn struct {
    Name      string    `json:"name"`
    RouteData RouteData `json:"route_data"`
}

// ReceiptRecord is one location's receipts as reported by the public dataset.
type ReceiptRecord struct {
    Key            string  `json:"key"`
    TaxpayerNumber string  `json:"taxpayer_number"`
    LocationNumber string  `json:"location_number"`
    Name           string  `json:"name"`
    Address        string  `json:"address"`
    City           string  `json:"city"`
    Zip            string  `json:"zip,omitempty"`
    County         string  `json:"county,omitempty"`
    Total          float64 `json:"total"`
    Months         int     `json:"months"`
    LastReported   string  `json:"last_reported,omitempty"`
}

type Place struct {
    PlaceID          string    `json:"place_id"`
    Name             string    `json:"name"`
    FormattedAddress string    `json:"formatted_address"`
    Location         GeoPoint  `json:"location"`
    Rating           float64   `json:"rating,omitempty"`
    Types            []string  `json:"types,omitempty"`
}

type PlaceDetails struct {
    Place
    Phone        string   `json:"phone,omitempty"`
    Website      string   `json:"website,omitempty"`
    WeekdayText  []string `json:"weekday_text,omitempty"`
    OpenNow      *bool    `json:"open_now,omitempty"`
    PriceLevel   int      `json:"price_level,omitempty"`
}

type GeocodeResult struct {
    Lat              float64 `json:"lat"`
    Lng              float64 `json:"lng"`
    FormattedAddress string  `json:"formatted_address"`
}

// SheetProspect is one row imported from the prospects spreadsheet.
type SheetProspect struct {
    Name    string   `json:"name"`
    Address string   `json:"address"`
    City    string   `json:"city,omitempty"`
    Lat     *float64 `json:"lat,omitempty"`
    Lng     *float64 `json:"lng,omitempty"`
    Notes   string   `json:"notes,omitempty"`
}
