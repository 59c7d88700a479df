package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"sosdesk/models"
	"sosdesk/reports"
	ws "sosdesk/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submittedFile struct {
	name, contentType, body string
}

type fakeReports struct {
	fields  map[string]string
	files   []submittedFile
	ackArgs [2]string
	list    []models.Report
	report  *models.Report
	err     error
}

func (f *fakeReports) Submit(_ context.Context, fields map[string]string, uploads []reports.Upload) (int64, error) {
	f.fields = fields
	for _, u := range uploads {
		rc, err := u.Open()
		if err != nil {
			return 0, err
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		f.files = append(f.files, submittedFile{u.Name, u.ContentType, string(data)})
	}
	if f.err != nil {
		return 0, f.err
	}
	return 41, nil
}

func (f *fakeReports) Acknowledge(_ context.Context, reportID, operatorID string) (*models.Report, error) {
	f.ackArgs = [2]string{reportID, operatorID}
	return f.report, f.err
}

func (f *fakeReports) List(context.Context) ([]models.Report, error) {
	return f.list, f.err
}

func (f *fakeReports) Get(_ context.Context, reportID string) (*models.Report, error) {
	return f.report, f.err
}

func newRouter(svc ReportService, hub *ws.Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(hub, svc, 1)
	router := gin.New()
	router.GET("/health", h.HealthCheck)
	api := router.Group("/api")
	api.POST("/submit", h.Submit)
	api.GET("/reports", h.ListReports)
	api.GET("/reports.geojson", h.GeoJSON)
	api.GET("/reports/listen", h.ListenReports)
	api.GET("/reports/:id", h.GetReport)
	api.POST("/reports/acknowledge", h.Acknowledge)
	return router
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func filePart(t *testing.T, mw *multipart.Writer, field, filename, contentType, body string) {
	t.Helper()
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = pw.Write([]byte(body))
	require.NoError(t, err)
}

func TestSubmitMultipartKeepsPartOrder(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(svc, ws.NewHub())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Asha"))
	require.NoError(t, mw.WriteField("name", "ignored"))
	require.NoError(t, mw.WriteField("mobile", "98765"))
	filePart(t, mw, "media", "a.webm", "audio/webm", "first")
	filePart(t, mw, "notes", "n.txt", "text/plain", "skip me")
	filePart(t, mw, "clip", "c.mp4", "video/mp4", "frames")
	filePart(t, mw, "media", "b.ogg", "audio/ogg", "second")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(router, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"reportId":41,"message":"Report submitted"}`, w.Body.String())
	assert.Equal(t, map[string]string{"name": "Asha", "mobile": "98765"}, svc.fields)
	assert.Equal(t, []submittedFile{
		{"a.webm", "audio/webm", "first"},
		{"c.mp4", "video/mp4", "frames"},
		{"b.ogg", "audio/ogg", "second"},
	}, svc.files)
}

func TestSubmitRejectsOversizedField(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(svc, ws.NewHub())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Asha"))
	require.NoError(t, mw.WriteField("complaint", strings.Repeat("x", maxFieldBytes+1024)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(router, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Form field too large"}`, w.Body.String())
	assert.Nil(t, svc.fields)
}

func TestSubmitAcceptsFieldAtLimit(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(svc, ws.NewHub())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("complaint", strings.Repeat("x", maxFieldBytes)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.fields["complaint"], maxFieldBytes)
}

func TestSubmitURLEncoded(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(svc, ws.NewHub())

	form := url.Values{"name": {"Ravi"}, "text": {"Fire"}, "latitude": {"12.9"}}
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fire", svc.fields["text"])
	assert.Equal(t, "12.9", svc.fields["latitude"])
	assert.Empty(t, svc.files)
}

func TestSubmitUpstreamFailure(t *testing.T) {
	svc := &fakeReports{err: &reports.Error{Kind: reports.KindUpstream, Message: "failed to store attachment", Err: errors.New("timeout")}}
	router := newRouter(svc, ws.NewHub())

	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(router, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"failed to store attachment"}`, w.Body.String())
}

func TestAcknowledgeAcceptsNumbersAndStrings(t *testing.T) {
	op := int64(7)
	svc := &fakeReports{report: &models.Report{ID: 3, Status: models.StatusAcknowledged, AcknowledgedBy: &op, Mode: models.ModeForm}}
	router := newRouter(svc, ws.NewHub())

	for _, body := range []string{`{"reportId":3,"operatorId":7}`, `{"reportId":"3","operatorId":"7"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/reports/acknowledge", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := do(router, req)

		require.Equal(t, http.StatusOK, w.Code, body)
		assert.Equal(t, [2]string{"3", "7"}, svc.ackArgs)

		var resp struct {
			Success bool          `json:"success"`
			Report  models.Report `json:"report"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, models.StatusAcknowledged, resp.Report.Status)
		assert.Equal(t, int64(7), *resp.Report.AcknowledgedBy)
	}
}

func TestAcknowledgeErrors(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"malformed json", `{"reportId":`, nil, http.StatusBadRequest, "reportId and operatorId are required"},
		{"boolean id", `{"reportId":true,"operatorId":7}`, nil, http.StatusBadRequest, "reportId and operatorId are required"},
		{"validation", `{"reportId":3}`, &reports.Error{Kind: reports.KindValidation, Message: "invalid operatorId", Err: errors.New("operatorId must be a non-zero integer")}, http.StatusBadRequest, "operatorId must be a non-zero integer"},
		{"not found", `{"reportId":99,"operatorId":7}`, &reports.Error{Kind: reports.KindNotFound, Message: "report not found"}, http.StatusNotFound, "Report not found"},
		{"store down", `{"reportId":3,"operatorId":7}`, &reports.Error{Kind: reports.KindUpstream, Message: "failed to acknowledge report"}, http.StatusBadGateway, "failed to acknowledge report"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(&fakeReports{err: tc.err}, ws.NewHub())
			req := httptest.NewRequest(http.MethodPost, "/api/reports/acknowledge", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := do(router, req)

			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"success":false,"error":%q}`, tc.message), w.Body.String())
		})
	}
}

func TestListReports(t *testing.T) {
	submitted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeReports{list: []models.Report{
		{ID: 2, Mode: models.ModeAudio, Status: models.StatusPending, SubmittedAt: submitted,
			Attachment: &models.Attachment{Kind: models.MediaAudio, URL: "https://m/a.webm"}},
		{ID: 1, Mode: models.ModeForm, Status: models.StatusPending, SubmittedAt: submitted.Add(-time.Minute)},
	}}
	router := newRouter(svc, ws.NewHub())

	w := do(router, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool             `json:"success"`
		Reports []map[string]any `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Reports, 2)
	assert.Equal(t, float64(2), resp.Reports[0]["id"])
	assert.Equal(t, "audio", resp.Reports[0]["mode"])
	assert.NotContains(t, resp.Reports[0], "audioUrl")
	assert.Nil(t, resp.Reports[1]["attachment"])
}

func TestListReportsEmptyIsArray(t *testing.T) {
	router := newRouter(&fakeReports{list: []models.Report{}}, ws.NewHub())
	w := do(router, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"reports":[]}`, w.Body.String())
}

func TestGetReport(t *testing.T) {
	router := newRouter(&fakeReports{report: &models.Report{ID: 5, Mode: models.ModeForm, Status: models.StatusPending}}, ws.NewHub())
	w := do(router, httptest.NewRequest(http.MethodGet, "/api/reports/5", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	router = newRouter(&fakeReports{err: &reports.Error{Kind: reports.KindNotFound, Message: "report not found"}}, ws.NewHub())
	w = do(router, httptest.NewRequest(http.MethodGet, "/api/reports/6", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGeoJSON(t *testing.T) {
	svc := &fakeReports{list: []models.Report{
		{ID: 1, Mode: models.ModeForm, Status: models.StatusPending, Location: &models.Location{Latitude: 12.9, Longitude: 77.5}},
		{ID: 2, Mode: models.ModeForm, Status: models.StatusPending},
	}}
	router := newRouter(svc, ws.NewHub())

	w := do(router, httptest.NewRequest(http.MethodGet, "/api/reports.geojson", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, []float64{77.5, 12.9}, fc.Features[0].Geometry.Coordinates)
}

func TestHealthCheck(t *testing.T) {
	hub := ws.NewHub()
	hub.Notify()
	router := newRouter(&fakeReports{}, hub)

	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "sosdesk", resp.Service)
	assert.Equal(t, 0, resp.ConnectedClients)
	assert.Equal(t, int64(1), resp.Notifications)
	assert.NotEmpty(t, resp.LastNotification)
	assert.Nil(t, resp.EventsConnected)
	assert.NotContains(t, w.Body.String(), "events_connected")
}

type fakeConnection bool

func (f fakeConnection) IsConnected() bool {
	return bool(f)
}

func TestHealthCheckReportsEventsConnection(t *testing.T) {
	for _, up := range []bool{true, false} {
		gin.SetMode(gin.TestMode)
		h := NewHandlers(ws.NewHub(), &fakeReports{}, 1)
		h.SetEvents(fakeConnection(up))
		router := gin.New()
		router.GET("/health", h.HealthCheck)

		w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.EventsConnected)
		assert.Equal(t, up, *resp.EventsConnected)
	}
}

func TestListenReceivesInvalidation(t *testing.T) {
	hub := ws.NewHub()
	server := httptest.NewServer(newRouter(&fakeReports{}, hub))
	defer server.Close()

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/reports/listen", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		n, _, _ := hub.Stats()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.BroadcastMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.MessageReportsChanged, msg.Type)
}
