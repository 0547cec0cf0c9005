// Package upstream holds the typed clients for external providers. Every
// response is parsed and validated here so the rest of the service only sees
// model types or a StatusError.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"prospector/internal/metrics"
)

// StatusError is a non-OK answer from a provider. Error returns the provider's
// status string verbatim.
type StatusError struct {
	Service string
	Status  string
	Code    int
}

func (e *StatusError) Error() string { return e.Status }

// Service names used in metrics and errors.
const (
	ServiceSocrata    = "socrata"
	ServiceGeocode    = "geocode"
	ServicePlaces     = "places"
	ServiceDetails    = "place_details"
	ServiceDirections = "directions"
	ServiceSheets     = "sheets"
	ServiceIntel      = "intel"
)

const defaultTimeout = 15 * time.Second

// NewLimiter returns a token bucket allowing rps requests per second with a
// burst of the same size. rps <= 0 disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func defaultHTTP(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultTimeout}
}

// getJSON waits on the limiter, performs the request and decodes a 2xx body
// into out. Non-2xx answers become a StatusError carrying the HTTP status.
func getJSON(ctx context.Context, hc *http.Client, lim *rate.Limiter, service string, req *http.Request, out any) error {
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	start := time.Now()
	resp, err := hc.Do(req.WithContext(ctx))
	metrics.UpstreamLatency.WithLabelValues(service).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(service, "error").Inc()
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(service, "error").Inc()
		return fmt.Errorf("%s read body: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamCalls.WithLabelValues(service, "status").Inc()
		return &StatusError{Service: service, Status: resp.Status, Code: resp.StatusCode}
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.UpstreamCalls.WithLabelValues(service, "malformed").Inc()
		return fmt.Errorf("%s decode: %w", service, err)
	}
	metrics.UpstreamCalls.WithLabelValues(service, "ok").Inc()
	return nil
}

// IsStatus reports whether err is a StatusError from a provider.
func IsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
