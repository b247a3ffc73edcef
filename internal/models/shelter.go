package models

import "time"

// Shelter is a fixed-location safe facility maintained by the authority
// shelter feed. The application never writes shelters directly; the sync
// manager upserts rows from the configured feed.
type Shelter struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Capacity         int       `json:"capacity"`
	CurrentOccupancy int       `json:"current_occupancy"`
	Facilities       []string  `json:"facilities"`
	Contact          string    `json:"contact"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (s *Shelter) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
	}
}
