package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sosdesk/geo"
	"sosdesk/models"
	"sosdesk/reports"
	ws "sosdesk/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// ReportService is the intake orchestrator as seen by the HTTP layer.
type ReportService interface {
	Submit(ctx context.Context, fields map[string]string, uploads []reports.Upload) (int64, error)
	Acknowledge(ctx context.Context, reportID, operatorID string) (*models.Report, error)
	List(ctx context.Context) ([]models.Report, error)
	Get(ctx context.Context, reportID string) (*models.Report, error)
}

// ConnectionChecker reports whether a downstream connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	hub            *ws.Hub
	reports        ReportService
	events         ConnectionChecker
	maxUploadBytes int64
}

// NewHandlers creates a new handlers instance
func NewHandlers(hub *ws.Hub, svc ReportService, maxUploadMB int) *Handlers {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handlers{
		hub:            hub,
		reports:        svc,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// SetEvents makes HealthCheck report the state of the report event publisher.
func (h *Handlers) SetEvents(events ConnectionChecker) {
	h.events = events
}

// AcknowledgeRequest is the body of POST /api/reports/acknowledge. Both ids may be sent
// as JSON numbers or strings.
type AcknowledgeRequest struct {
	ReportID   flexibleID `json:"reportId"`
	OperatorID flexibleID `json:"operatorId"`
}

// Submit handles POST /api/submit
func (h *Handlers) Submit(c *gin.Context) {
	fields, uploads, cleanup, err := readSubmission(c.Writer, c.Request, h.maxUploadBytes)
	defer cleanup()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "Upload too large"})
			return
		}
		if errors.Is(err, errFieldTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "Form field too large"})
			return
		}
		log.Warnf("Failed to read submission: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid submission payload"})
		return
	}

	id, err := h.reports.Submit(c.Request.Context(), fields, uploads)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reportId": id, "message": "Report submitted"})
}

// ListReports handles GET /api/reports
func (h *Handlers) ListReports(c *gin.Context) {
	list, err := h.reports.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": list})
}

// GetReport handles GET /api/reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	r, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": r})
}

// Acknowledge handles POST /api/reports/acknowledge
func (h *Handlers) Acknowledge(c *gin.Context) {
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "reportId and operatorId are required"})
		return
	}

	r, err := h.reports.Acknowledge(c.Request.Context(), string(req.ReportID), string(req.OperatorID))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": r})
}

// GeoJSON handles GET /api/reports.geojson
func (h *Handlers) GeoJSON(c *gin.Context) {
	list, err := h.reports.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := geo.FeatureCollection(list).MarshalJSON()
	if err != nil {
		log.Errorf("Failed to marshal feature collection: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to encode reports"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ListenReports handles WebSocket connections for live report invalidations
func (h *Handlers) ListenReports(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}
	log.Debugf("WebSocket connection established from %s", c.ClientIP())
	ws.NewClient(conn).Serve(h.hub)
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	connected, notifications, last := h.hub.Stats()

	response := models.HealthResponse{
		Status:           "healthy",
		Service:          "sosdesk",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: connected,
		Notifications:    notifications,
	}
	if !last.IsZero() {
		response.LastNotification = last.Format(time.RFC3339)
	}
	if h.events != nil {
		connected := h.events.IsConnected()
		response.EventsConnected = &connected
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	var rerr *reports.Error
	if !errors.As(err, &rerr) {
		log.Errorf("Unexpected error on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal error"})
		return
	}

	switch rerr.Kind {
	case reports.KindValidation:
		message := rerr.Message
		if rerr.Err != nil {
			message = rerr.Err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
	case reports.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Report not found"})
	default:
		log.Errorf("Request %s failed: %v", c.FullPath(), err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": rerr.Message})
	}
}
