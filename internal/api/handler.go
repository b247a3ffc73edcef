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
	"github.com/hmori/go-civic-response/internal/broadcast"
	"github.com/hmori/go-civic-response/internal/media"
	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
)

type Handler struct {
	store       repository.Store
	broadcaster *broadcast.Broadcaster
	media       *media.Store
	activity    *activity.Recorder
	sessions    *auth.Manager
}

func NewHandler(store repository.Store, broadcaster *broadcast.Broadcaster, mediaStore *media.Store, recorder *activity.Recorder, sessions *auth.Manager) *Handler {
	return &Handler{
		store:       store,
		broadcaster: broadcaster,
		media:       mediaStore,
		activity:    recorder,
		sessions:    sessions,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.media != nil {
		r.Static("/media", h.media.Dir())
	}

	api := r.Group("/api")
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)

	authed := api.Group("", auth.Middleware(h.sessions))
	authed.GET("/auth/me", h.me)
	authed.GET("/alerts", h.listAlerts)
	authed.POST("/alerts", auth.RequireRole(models.RoleAuthority), h.createAlert)
	authed.GET("/alerts/stream", h.streamAlerts)
	authed.POST("/alerts/:id/responses", h.submitResponse)
	authed.GET("/responses", h.listMyResponses)
	authed.GET("/shelters", h.listShelters)
	authed.GET("/map", h.mapFeatures)
	authed.POST("/reports", h.createReport)
	authed.GET("/reports", h.listReports)
	authed.GET("/activity", h.listActivity)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- alerts ---

func (h *Handler) listAlerts(c *gin.Context) {
	var filter repository.AlertFilter

	if sv := c.Query("severity"); sv != "" {
		severity := models.AlertSeverity(sv)
		if severity.Valid() {
			filter.Severity = &severity
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

type createAlertRequest struct {
	Title     string  `json:"title" binding:"required"`
	Message   string  `json:"message"`
	Severity  string  `json:"severity" binding:"required"`
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	severity := models.AlertSeverity(req.Severity)
	if !severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
		return
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Message:   req.Message,
		Severity:  severity,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: time.Now(),
	}

	if err := h.store.AddAlert(c.Request.Context(), alert); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.Broadcast(alert)
	}

	c.JSON(http.StatusCreated, alert)
}

// --- alert responses ---

type submitResponseRequest struct {
	Response string `json:"response" binding:"required"`
}

func (h *Handler) submitResponse(c *gin.Context) {
	sess, ok := auth.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	var req submitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	value := models.ResponseValue(req.Response)
	if !value.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "response must be yes or no"})
		return
	}

	alertID := c.Param("id")
	alert, err := h.store.GetAlertByID(c.Request.Context(), alertID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alert"})
		return
	}

	response := &models.AlertResponse{
		ID:        uuid.NewString(),
		AlertID:   alert.ID,
		UserID:    sess.UserID,
		Response:  value,
		CreatedAt: time.Now(),
	}

	err = h.store.AddResponse(c.Request.Context(), response)
	if errors.Is(err, repository.ErrDuplicateResponse) {
		c.JSON(http.StatusConflict, gin.H{"error": "already responded to this alert"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record response"})
		return
	}

	if h.activity != nil {
		h.activity.Record(activity.Event{
			UserID:  sess.UserID,
			Kind:    activity.KindAlertResponse,
			RefID:   alert.ID,
			Message: responseMessage(alert, value),
		})
	}

	c.JSON(http.StatusCreated, response)
}

func responseMessage(alert *models.Alert, value models.ResponseValue) string {
	if value == models.ResponseYes {
		return "marked safe for: " + alert.Title
	}
	return "requested help for: " + alert.Title
}

func (h *Handler) listMyResponses(c *gin.Context) {
	sess, ok := auth.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	responses, err := h.store.ListResponsesByUser(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch responses"})
		return
	}
	if responses == nil {
		responses = []models.AlertResponse{}
	}

	c.JSON(http.StatusOK, gin.H{"responses": responses})
}

// --- shelters ---

func (h *Handler) listShelters(c *gin.Context) {
	shelters, err := h.store.ListShelters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch shelters"})
		return
	}
	if shelters == nil {
		shelters = []models.Shelter{}
	}

	c.JSON(http.StatusOK, gin.H{"shelters": shelters})
}

// --- activity feed ---

func (h *Handler) listActivity(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 200 {
			limit = lim
		}
	}

	entries, err := h.store.ListActivity(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch activity"})
		return
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
