package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// mapFeatures serves alerts and shelters as one GeoJSON layer for the
// dashboard map.
func (h *Handler) mapFeatures(c *gin.Context) {
	alerts, err := h.store.ListAlerts(c.Request.Context(), repository.AlertFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}
	shelters, err := h.store.ListShelters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch shelters"})
		return
	}

	fc := toGeoJSON(alerts, shelters)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func toGeoJSON(alerts []models.Alert, shelters []models.Shelter) FeatureCollection {
	features := make([]Feature, 0, len(alerts)+len(shelters))

	for _, a := range alerts {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{a.Longitude, a.Latitude},
			},
			Properties: map[string]any{
				"kind":       "alert",
				"id":         a.ID,
				"title":      a.Title,
				"message":    a.Message,
				"severity":   string(a.Severity),
				"location":   a.Location,
				"created_at": a.CreatedAt,
			},
		})
	}

	for _, s := range shelters {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{s.Longitude, s.Latitude},
			},
			Properties: map[string]any{
				"kind":              "shelter",
				"id":                s.ID,
				"name":              s.Name,
				"address":           s.Address,
				"capacity":          s.Capacity,
				"current_occupancy": s.CurrentOccupancy,
				"contact":           s.Contact,
			},
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
