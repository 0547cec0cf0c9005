// Package route plans multi-stop visits between saved accounts.
package route

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"prospector/internal/model"
	"prospector/internal/opt"
	"prospector/internal/polyline"
	"prospector/internal/upstream"
)

const (
	// FallbackOriginWarning is surfaced when no live location was supplied.
	FallbackOriginWarning = "Using first stop as starting point; live location unavailable"

	ProviderGoogle  = "google"
	ProviderOffline = "offline"

	// offlineSpeedKph converts straight-line distance to a drive estimate.
	offlineSpeedKph = 40.0
)

var (
	ErrTooFewWaypoints = errors.New("at least 2 waypoints are required")
	ErrBadPermutation  = errors.New("waypoint order is not a permutation of the input")
	ErrBadCoordinate   = errors.New("coordinate out of range")
)

// Directions is the external directions collaborator.
type Directions interface {
	Directions(ctx context.Context, req upstream.DirectionsRequest) (upstream.DirectionsResult, error)
}

// Planner validates a route request, delegates ordering to Directions and
// shapes the result. A nil Directions plans offline.
type Planner struct {
	Directions Directions
	Log        *zap.Logger
}

func NewPlanner(d Directions, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{Directions: d, Log: log}
}

// Plan computes a round trip from the origin through every waypoint.
func (p *Planner) Plan(ctx context.Context, req model.RouteRequest) (model.RouteResult, error) {
	if len(req.Waypoints) < 2 {
		return model.RouteResult{}, ErrTooFewWaypoints
	}
	if err := validate(req); err != nil {
		return model.RouteResult{}, err
	}
	var warning string
	origin := model.GeoPoint{Lat: req.Waypoints[0].Lat, Lng: req.Waypoints[0].Lng}
	if req.Origin != nil {
		origin = *req.Origin
	} else {
		warning = FallbackOriginWarning
	}
	stops := make([]model.GeoPoint, len(req.Waypoints))
	for i, w := range req.Waypoints {
		stops[i] = model.GeoPoint{Lat: w.Lat, Lng: w.Lng}
	}

	var (
		res model.RouteResult
		err error
	)
	if p.Directions == nil {
		res, err = offline(origin, stops)
	} else {
		res, err = p.viaDirections(ctx, origin, stops)
	}
	if err != nil {
		return model.RouteResult{}, err
	}
	ordered, err := Reorder(req.Waypoints, res.WaypointOrder)
	if err != nil {
		return model.RouteResult{}, err
	}
	res.Waypoints = ordered
	res.Warning = warning
	p.Log.Debug("route planned",
		zap.String("provider", res.Provider),
		zap.Int("stops", len(stops)),
		zap.Int("distance_m", res.Distance))
	return res, nil
}

// validate rejects points off the globe before anything is planned.
func validate(req model.RouteRequest) error {
	if req.Origin != nil && !onGlobe(*req.Origin) {
		return fmt.Errorf("%w: origin (%g, %g)", ErrBadCoordinate, req.Origin.Lat, req.Origin.Lng)
	}
	for _, w := range req.Waypoints {
		if !onGlobe(model.GeoPoint{Lat: w.Lat, Lng: w.Lng}) {
			return fmt.Errorf("%w: waypoint %q (%g, %g)", ErrBadCoordinate, w.ID, w.Lat, w.Lng)
		}
	}
	return nil
}

// onGlobe is false for NaN as well as out-of-range values.
func onGlobe(p model.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p *Planner) viaDirections(ctx context.Context, origin model.GeoPoint, stops []model.GeoPoint) (model.RouteResult, error) {
	dr, err := p.Directions.Directions(ctx, upstream.DirectionsRequest{
		Origin:      origin,
		Destination: origin,
		Waypoints:   stops,
		Optimize:    true,
	})
	if err != nil {
		return model.RouteResult{}, err
	}
	segments := dr.StepPolylines
	if len(segments) == 0 && dr.Polyline != "" {
		segments = []string{dr.Polyline}
	}
	path, err := polyline.DecodeAll(segments)
	if err != nil {
		return model.RouteResult{}, fmt.Errorf("decode route path: %w", err)
	}
	order := dr.Order
	if len(order) == 0 {
		order = identity(len(stops))
	}
	return model.RouteResult{
		Distance:      dr.Distance,
		Duration:      dr.Duration,
		Polyline:      dr.Polyline,
		WaypointOrder: order,
		Legs:          dr.Legs,
		Path:          path,
		Provider:      ProviderGoogle,
	}, nil
}

// offline orders stops with local heuristics and straight-line distances.
func offline(origin model.GeoPoint, stops []model.GeoPoint) (model.RouteResult, error) {
	order, dist := opt.Tour(origin, stops)
	path := make([]model.GeoPoint, 0, len(stops)+2)
	path = append(path, origin)
	legs := make([]model.RouteLeg, 0, len(stops)+1)
	cur := origin
	for _, idx := range order {
		legs = append(legs, offlineLeg(cur, stops[idx]))
		path = append(path, stops[idx])
		cur = stops[idx]
	}
	legs = append(legs, offlineLeg(cur, origin))
	path = append(path, origin)
	return model.RouteResult{
		Distance:      int(math.Round(dist)),
		Duration:      driveSeconds(dist),
		Polyline:      polyline.Encode(path),
		WaypointOrder: order,
		Legs:          legs,
		Path:          path,
		Provider:      ProviderOffline,
	}, nil
}

func offlineLeg(a, b model.GeoPoint) model.RouteLeg {
	d := opt.Haversine(a, b)
	return model.RouteLeg{DistanceM: int(math.Round(d)), DurationSec: driveSeconds(d)}
}

func driveSeconds(meters float64) int {
	return int(math.Round(meters / (offlineSpeedKph * 1000 / 3600)))
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Reorder returns in rearranged so that out[i] = in[order[i]].
func Reorder(in []model.Waypoint, order []int) ([]model.Waypoint, error) {
	if len(order) != len(in) {
		return nil, fmt.Errorf("%w: got %d indices for %d waypoints", ErrBadPermutation, len(order), len(in))
	}
	seen := make([]bool, len(in))
	out := make([]model.Waypoint, len(in))
	for i, idx := range order {
		if idx < 0 || idx >= len(in) || seen[idx] {
			return nil, fmt.Errorf("%w: index %d", ErrBadPermutation, idx)
		}
		seen[idx] = true
		out[i] = in[idx]
	}
	return out, nil
}
