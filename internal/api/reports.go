package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hmori/go-civic-response/internal/activity"
	"github.com/hmori/go-civic-response/internal/auth"
	"github.com/hmori/go-civic-response/internal/media"
	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
)

// createReport accepts a multipart form: title, description, category,
// latitude, longitude plus zero or more "photos" files.
func (h *Handler) createReport(c *gin.Context) {
	sess, ok := auth.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	lat, lng, err := parseCoordinates(c.PostForm("latitude"), c.PostForm("longitude"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coordinates"})
		return
	}

	var photoURLs []string
	form, err := c.MultipartForm()
	if err == nil && h.media != nil {
		for _, fh := range form.File["photos"] {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo upload"})
				return
			}
			name, err := h.media.Save(f, fh.Filename)
			f.Close()
			if errors.Is(err, media.ErrUnsupportedType) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported photo type: " + fh.Filename})
				return
			}
			if errors.Is(err, media.ErrTooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large: " + fh.Filename})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
				return
			}
			photoURLs = append(photoURLs, "/media/"+name)
		}
	}

	report := &models.Report{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		Title:       title,
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Latitude:    lat,
		Longitude:   lng,
		PhotoURLs:   photoURLs,
		Status:      models.ReportStatusOpen,
		CreatedAt:   time.Now(),
	}

	if err := h.store.AddReport(c.Request.Context(), report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create report"})
		return
	}

	if h.activity != nil {
		h.activity.Record(activity.Event{
			UserID:  sess.UserID,
			Kind:    activity.KindReportCreated,
			RefID:   report.ID,
			Message: "reported: " + report.Title,
		})
	}

	c.JSON(http.StatusCreated, report)
}

// listReports returns the caller's own reports; authority accounts see
// every report and may filter by user_id.
func (h *Handler) listReports(c *gin.Context) {
	sess, ok := auth.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	filter := repository.ReportFilter{
		UserID: sess.UserID,
	}
	if sess.Role == models.RoleAuthority {
		filter.UserID = c.Query("user_id")
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	reports, err := h.store.ListReports(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch reports"})
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func parseCoordinates(latStr, lngStr string) (float64, float64, error) {
	if latStr == "" && lngStr == "" {
		return 0, 0, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, err
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, errors.New("coordinates out of range")
	}
	return lat, lng, nil
}
