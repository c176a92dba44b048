package domain

import "context"

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Facility is a candidate emergency facility. Latitude/Longitude are nil
// when the directory has no coordinates for it; DistanceKm may carry a
// directory-supplied distance which ranking overwrites whenever coordinates
// are present.
type Facility struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	DistanceKm float64  `json:"distance_km,omitempty"`
}

// GeoProvider resolves the observer's position. Implementations may return
// an error for denial or unavailability; callers treat that as non-fatal.
type GeoProvider interface {
	Locate(ctx context.Context) (Coordinate, error)
}

// FacilityDirectory lists candidate emergency facilities near a point.
type FacilityDirectory interface {
	Nearby(ctx context.Context, at Coordinate) ([]Facility, error)
}
