package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"prospector/internal/model"
)

const DefaultMapsBase = "https://maps.googleapis.com/maps/api"

// detailFields is the Place Details field mask we parse.
const detailFields = "place_id,name,formatted_address,geometry,rating,types,formatted_phone_number,website,opening_hours,price_level"

// Maps talks to the Google Maps web services. Every answer carries a status
// string; anything other than OK is returned as a StatusError.
type Maps struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	Limiter  *rate.Limiter
	Cache    Cache
	CacheTTL time.Duration
}

// ErrBadWaypointOrder means the directions provider returned an order that
// does not cover the requested waypoints.
var ErrBadWaypointOrder = errors.New("directions: waypoint order does not match the waypoints")

func NewMaps(apiKey string, lim *rate.Limiter) *Maps {
	return &Maps{BaseURL: DefaultMapsBase, APIKey: apiKey, HTTP: defaultHTTP(nil), Limiter: lim}
}

func (m *Maps) get(ctx context.Context, service, path string, params url.Values, out any) error {
	params.Set("key", m.APIKey)
	u := strings.TrimRight(m.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return getJSON(ctx, m.HTTP, m.Limiter, service, req, out)
}

type mapsStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (s mapsStatus) check(service string, allowEmpty bool) error {
	switch {
	case s.Status == "OK":
		return nil
	case s.Status == "ZERO_RESULTS" && allowEmpty:
		return nil
	case s.Status == "":
		return &StatusError{Service: service, Status: "UNKNOWN_ERROR"}
	}
	return &StatusError{Service: service, Status: s.Status}
}

type mapsGeometry struct {
	Location model.GeoPoint `json:"location"`
}

type mapsPlace struct {
	PlaceID          string       `json:"place_id"`
	Name             string       `json:"name"`
	FormattedAddress string       `json:"formatted_address"`
	Geometry         mapsGeometry `json:"geometry"`
	Rating           float64      `json:"rating"`
	Types            []string     `json:"types"`
}

func (p mapsPlace) place() model.Place {
	return model.Place{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: p.FormattedAddress,
		Location:         p.Geometry.Location,
		Rating:           p.Rating,
		Types:            p.Types,
	}
}

// Geocode resolves a free-form address to its first match.
func (m *Maps) Geocode(ctx context.Context, address string) (model.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.GeocodeResult{}, ErrEmptyQuery
	}
	return cached(ctx, m.Cache, m.CacheTTL, ServiceGeocode, strings.ToLower(address), func() (model.GeocodeResult, error) {
		var body struct {
			mapsStatus
			Results []struct {
				FormattedAddress string       `json:"formatted_address"`
				Geometry         mapsGeometry `json:"geometry"`
			} `json:"results"`
		}
		if err := m.get(ctx, ServiceGeocode, "/geocode/json", url.Values{"address": {address}}, &body); err != nil {
			return model.GeocodeResult{}, err
		}
		if err := body.check(ServiceGeocode, false); err != nil {
			return model.GeocodeResult{}, err
		}
		if len(body.Results) == 0 {
			return model.GeocodeResult{}, &StatusError{Service: ServiceGeocode, Status: "ZERO_RESULTS"}
		}
		r := body.Results[0]
		return model.GeocodeResult{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng, FormattedAddress: r.FormattedAddress}, nil
	})
}

// SearchPlaces runs a text search. No results is an empty list.
func (m *Maps) SearchPlaces(ctx context.Context, query string) ([]model.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return cached(ctx, m.Cache, m.CacheTTL, ServicePlaces, strings.ToLower(query), func() ([]model.Place, error) {
		var body struct {
			mapsStatus
			Results []mapsPlace `json:"results"`
		}
		if err := m.get(ctx, ServicePlaces, "/place/textsearch/json", url.Values{"query": {query}}, &body); err != nil {
			return nil, err
		}
		if err := body.check(ServicePlaces, true); err != nil {
			return nil, err
		}
		out := make([]model.Place, 0, len(body.Results))
		for _, p := range body.Results {
			out = append(out, p.place())
		}
		return out, nil
	})
}

// PlaceDetails fetches contact info and opening hours for a place.
func (m *Maps) PlaceDetails(ctx context.Context, placeID string) (model.PlaceDetails, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return model.PlaceDetails{}, ErrEmptyQuery
	}
	return cached(ctx, m.Cache, m.CacheTTL, ServiceDetails, placeID, func() (model.PlaceDetails, error) {
		var body struct {
			mapsStatus
			Result struct {
				mapsPlace
				Phone        string `json:"formatted_phone_number"`
				Website      string `json:"website"`
				PriceLevel   int    `json:"price_level"`
				OpeningHours *struct {
					OpenNow     *bool    `json:"open_now"`
					WeekdayText []string `json:"weekday_text"`
				} `json:"opening_hours"`
			} `json:"result"`
		}
		params := url.Values{"place_id": {placeID}, "fields": {detailFields}}
		if err := m.get(ctx, ServiceDetails, "/place/details/json", params, &body); err != nil {
			return model.PlaceDetails{}, err
		}
		if err := body.check(ServiceDetails, false); err != nil {
			return model.PlaceDetails{}, err
		}
		r := body.Result
		d := model.PlaceDetails{Place: r.place(), Phone: r.Phone, Website: r.Website, PriceLevel: r.PriceLevel}
		if r.OpeningHours != nil {
			d.OpenNow = r.OpeningHours.OpenNow
			d.WeekdayText = r.OpeningHours.WeekdayText
		}
		return d, nil
	})
}

// DirectionsRequest asks for a route from Origin to Destination through Waypoints.
type DirectionsRequest struct {
	Origin      model.GeoPoint
	Destination model.GeoPoint
	Waypoints   []model.GeoPoint
	Optimize    bool
}

// DirectionsResult is the parsed first route of a directions answer.
type DirectionsResult struct {
	Distance      int
	Duration      int
	Order         []int
	Polyline      string
	Legs          []model.RouteLeg
	StepPolylines []string
}

func latLng(p model.GeoPoint) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Directions requests a driving route. Results are not cached.
func (m *Maps) Directions(ctx context.Context, dr DirectionsRequest) (DirectionsResult, error) {
	params := url.Values{
		"origin":      {latLng(dr.Origin)},
		"destination": {latLng(dr.Destination)},
		"mode":        {"driving"},
	}
	if len(dr.Waypoints) > 0 {
		parts := make([]string, 0, len(dr.Waypoints)+1)
		if dr.Optimize {
			parts = append(parts, "optimize:true")
		}
		for _, w := range dr.Waypoints {
			parts = append(parts, latLng(w))
		}
		params.Set("waypoints", strings.Join(parts, "|"))
	}
	var body struct {
		mapsStatus
		Routes []struct {
			OverviewPolyline struct {
				Points string `json:"points"`
			} `json:"overview_polyline"`
			WaypointOrder []int `json:"waypoint_order"`
			Legs          []struct {
				StartAddress string `json:"start_address"`
				EndAddress   string `json:"end_address"`
				Distance     struct {
					Value int `json:"value"`
				} `json:"distance"`
				Duration struct {
					Value int `json:"value"`
				} `json:"duration"`
				Steps []struct {
					Polyline struct {
						Points string `json:"points"`
					} `json:"polyline"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := m.get(ctx, ServiceDirections, "/directions/json", params, &body); err != nil {
		return DirectionsResult{}, err
	}
	if err := body.check(ServiceDirections, false); err != nil {
		return DirectionsResult{}, err
	}
	if len(body.Routes) == 0 {
		return DirectionsResult{}, &StatusError{Service: ServiceDirections, Status: "ZERO_RESULTS"}
	}
	rt := body.Routes[0]
	out := DirectionsResult{Order: rt.WaypointOrder, Polyline: rt.OverviewPolyline.Points}
	for _, l := range rt.Legs {
		out.Distance += l.Distance.Value
		out.Duration += l.Duration.Value
		out.Legs = append(out.Legs, model.RouteLeg{
			StartAddress: l.StartAddress,
			EndAddress:   l.EndAddress,
			DistanceM:    l.Distance.Value,
			DurationSec:  l.Duration.Value,
		})
		for _, s := range l.Steps {
			if s.Polyline.Points != "" {
				out.StepPolylines = append(out.StepPolylines, s.Polyline.Points)
			}
		}
	}
	if len(out.Order) != 0 && len(out.Order) != len(dr.Waypoints) {
		return DirectionsResult{}, fmt.Errorf("%w: %d entries for %d waypoints", ErrBadWaypointOrder, len(out.Order), len(dr.Waypoints))
	}
	return out, nil
}
