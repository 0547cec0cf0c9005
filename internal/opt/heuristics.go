package opt

import (
	"math"

	"prospector/internal/model"
)

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// NearestNeighbor seeds a visiting order by always driving to the closest
// unvisited stop, starting from origin.
func NearestNeighbor(origin model.GeoPoint, stops []model.GeoPoint) []int {
	n := len(stops)
	used := make([]bool, n)
	order := make([]int, 0, n)
	cur := origin
	for len(order) < n {
		bestIdx, bestDist := -1, math.MaxFloat64
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			if d := Haversine(cur, stops[i]); d < bestDist {
				bestIdx, bestDist = i, d
			}
		}
		if bestIdx < 0 {
			// every remaining distance is NaN; take the next unvisited stop
			for i := 0; i < n && bestIdx < 0; i++ {
				if !used[i] {
					bestIdx = i
				}
			}
		}
		used[bestIdx] = true
		order = append(order, bestIdx)
		cur = stops[bestIdx]
	}
	return order
}

// TourDistance is the round-trip length origin -> stops in order -> origin.
func TourDistance(origin model.GeoPoint, stops []model.GeoPoint, order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := 0.0
	cur := origin
	for _, idx := range order {
		total += Haversine(cur, stops[idx])
		cur = stops[idx]
	}
	return total + Haversine(cur, origin)
}

// ImproveOrder2Opt reverses segments of the order while that shortens the
// round trip. The origin stays fixed at both ends.
func ImproveOrder2Opt(origin model.GeoPoint, stops []model.GeoPoint, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := TourDistance(origin, stops, best)
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := TourDistance(origin, stops, cand); d+1e-3 < bestDist {
					best, bestDist = cand, d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := append([]int(nil), ord...)
	// reverse segment [i,k]
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

// Tour orders stops for a round trip from origin and returns the order with
// its length in meters.
func Tour(origin model.GeoPoint, stops []model.GeoPoint) ([]int, float64) {
	order := ImproveOrder2Opt(origin, stops, NearestNeighbor(origin, stops), 50)
	return order, TourDistance(origin, stops, order)
}
