package usecase

import (
	"math"
	"sort"

	"medichat/internal/domain"
)

const (
	earthRadiusKm = 6371

	// missingDistanceKm ranks candidates without coordinates after
	// everything else.
	missingDistanceKm = 999999
)

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b domain.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// RankByProximity annotates candidates with their distance from the observer
// and returns them sorted ascending. Pure: the input slice is not modified.
//
// Only freshly computed distances are sort keys. Candidates carrying
// coordinates get a recomputed distance, replacing any supplied one
// (recomputation guarantees consistent units and reference point).
// Candidates without coordinates keep whatever distance they arrived with
// for display, but rank after every located candidate regardless of that
// value. Ties keep input order.
func RankByProximity(observer domain.Coordinate, candidates []domain.Facility) []domain.Facility {
	ranked := make([]domain.Facility, len(candidates))
	copy(ranked, candidates)

	keys := make([]float64, len(ranked))
	for i := range ranked {
		if ranked[i].Latitude != nil && ranked[i].Longitude != nil {
			ranked[i].DistanceKm = Haversine(observer, domain.Coordinate{
				Latitude:  *ranked[i].Latitude,
				Longitude: *ranked[i].Longitude,
			})
			keys[i] = ranked[i].DistanceKm
		} else {
			keys[i] = missingDistanceKm
		}
	}

	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] < keys[order[j]]
	})

	out := make([]domain.Facility, len(ranked))
	for i, idx := range order {
		out[i] = ranked[idx]
	}
	return out
}
