// Package polyline implements Google's encoded polyline algorithm at 1e5 precision.
package polyline

import (
	"errors"
	"math"
	"strings"

	"prospector/internal/model"
)

const precision = 1e5

var ErrMalformed = errors.New("polyline: malformed input")

// Decode expands an encoded polyline into points, accumulating deltas from (0,0).
func Decode(s string) ([]model.GeoPoint, error) {
	var (
		out      []model.GeoPoint
		lat, lng int64
	)
	for i := 0; i < len(s); {
		dlat, n, err := varint(s, i)
		if err != nil {
			return nil, err
		}
		i = n
		dlng, n, err := varint(s, i)
		if err != nil {
			return nil, err
		}
		i = n
		lat += dlat
		lng += dlng
		out = append(out, model.GeoPoint{Lat: float64(lat) / precision, Lng: float64(lng) / precision})
	}
	return out, nil
}

// DecodeAll decodes and concatenates several encoded segments (legs/steps) in order.
func DecodeAll(segments []string) ([]model.GeoPoint, error) {
	var out []model.GeoPoint
	for _, seg := range segments {
		pts, err := Decode(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, pts...)
	}
	return out, nil
}

// varint reads one zig-zag encoded value starting at i and returns it with the next offset.
func varint(s string, i int) (int64, int, error) {
	var result int64
	var shift uint
	for {
		if i >= len(s) {
			return 0, i, ErrMalformed
		}
		b := int64(s[i]) - 63
		i++
		if b < 0 || b > 63 || shift > 60 {
			return 0, i, ErrMalformed
		}
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// Encode is the inverse of Decode. Coordinates are rounded to 5 decimals.
func Encode(points []model.GeoPoint) string {
	var sb strings.Builder
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * precision))
		lng := int64(math.Round(p.Lng * precision))
		writeVarint(&sb, lat-prevLat)
		writeVarint(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func writeVarint(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}
