// Package reports composes intake, storage, the status machine and fanout into the
// operations the HTTP layer exposes: submit, acknowledge, list and get.
package reports

import (
	"context"
	"errors"
	"io"
	"time"

	"sosdesk/database"
	"sosdesk/geo"
	"sosdesk/intake"
	"sosdesk/lifecycle"
	"sosdesk/metrics"
	"sosdesk/models"
	"sosdesk/storage"

	"github.com/apex/log"
)

// Store is the persistent report storage.
type Store interface {
	CreateReport(ctx context.Context, r *models.Report) (*models.Report, error)
	GetReport(ctx context.Context, id int64) (*models.Report, error)
	ListReports(ctx context.Context, visibilityDelay time.Duration) ([]models.Report, error)
	AcknowledgeReport(ctx context.Context, id, operatorID int64, policy lifecycle.Policy) (*models.Report, error)
}

// Notifier signals live viewers that the report set changed.
type Notifier interface {
	Notify()
}

// EventPublisher forwards report events to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.ReportEvent) error
}

// Upload is one file part of a submission.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Options tune listing and acknowledgment behavior.
type Options struct {
	// VisibilityDelay withholds pending reports younger than this from listings. Zero disables it.
	VisibilityDelay time.Duration
	AckPolicy       lifecycle.Policy
	Now             func() time.Time
}

// Service is the intake orchestrator.
type Service struct {
	store    Store
	uploader storage.Uploader
	notifier Notifier
	events   EventPublisher
	opts     Options
}

// New creates the orchestrator. uploader and events may be nil.
func New(store Store, uploader storage.Uploader, notifier Notifier, events EventPublisher, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AckPolicy == "" {
		opts.AckPolicy = lifecycle.PolicyOverwrite
	}
	return &Service{
		store:    store,
		uploader: uploader,
		notifier: notifier,
		events:   events,
		opts:     opts,
	}
}

// Submit stores the attachments, builds the canonical report, persists it and notifies
// viewers. Any storage failure aborts the whole submission.
func (s *Service) Submit(ctx context.Context, fields map[string]string, uploads []Upload) (int64, error) {
	files := make([]intake.File, 0, len(uploads))
	for _, u := range uploads {
		if !intake.IsMedia(u.ContentType) {
			log.WithField("content_type", u.ContentType).Debug("Ignoring non-media file part")
			continue
		}
		url, err := s.storeUpload(ctx, u)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues("upload_failed", "").Inc()
			return 0, upstreamError("failed to store attachment", err)
		}
		files = append(files, intake.File{ContentType: u.ContentType, URL: url})
	}

	report := intake.BuildReport(intake.NormalizeFields(fields), intake.ClassifyAttachments(files))
	report.Cell = geo.CellToken(report.Location)

	stored, err := s.store.CreateReport(ctx, &report)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("store_failed", string(report.Mode)).Inc()
		return 0, upstreamError("failed to save report", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("ok", string(stored.Mode)).Inc()
	log.WithFields(log.Fields{"report_id": stored.ID, "mode": stored.Mode}).Info("Report submitted")

	s.notifier.Notify()
	s.publish(ctx, models.EventReportCreated, stored)
	return stored.ID, nil
}

func (s *Service) storeUpload(ctx context.Context, u Upload) (string, error) {
	if s.uploader == nil {
		return "", errors.New("no object storage configured")
	}
	body, err := u.Open()
	if err != nil {
		return "", err
	}
	defer body.Close()

	start := time.Now()
	url, err := s.uploader.Upload(ctx, storage.Object{
		Name:        u.Name,
		ContentType: u.ContentType,
		Size:        u.Size,
		Body:        body,
	})
	metrics.UploadDurationSeconds.Observe(time.Since(start).Seconds())
	return url, err
}

// Acknowledge moves a report to acknowledged. Identifiers are validated before the store
// is touched.
func (s *Service) Acknowledge(ctx context.Context, reportID, operatorID string) (*models.Report, error) {
	id, err := lifecycle.ParseReportID(reportID)
	if err != nil {
		metrics.AcknowledgmentsTotal.WithLabelValues("invalid").Inc()
		return nil, validationError("invalid reportId", err)
	}
	op, err := lifecycle.ParseOperatorID(operatorID)
	if err != nil {
		metrics.AcknowledgmentsTotal.WithLabelValues("invalid").Inc()
		return nil, validationError("invalid operatorId", err)
	}

	r, err := s.store.AcknowledgeReport(ctx, id, op, s.opts.AckPolicy)
	if errors.Is(err, database.ErrReportNotFound) {
		metrics.AcknowledgmentsTotal.WithLabelValues("not_found").Inc()
		return nil, notFoundError("report not found", err)
	}
	if err != nil {
		metrics.AcknowledgmentsTotal.WithLabelValues("store_failed").Inc()
		return nil, upstreamError("failed to acknowledge report", err)
	}
	metrics.AcknowledgmentsTotal.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{"report_id": r.ID, "operator_id": op}).Info("Report acknowledged")

	s.notifier.Notify()
	s.publish(ctx, models.EventReportAcknowledged, r)
	return r, nil
}

// List returns the visible reports, newest first. The delay is measured by the store's
// clock, the same one that stamps submittedAt.
func (s *Service) List(ctx context.Context) ([]models.Report, error) {
	list, err := s.store.ListReports(ctx, s.opts.VisibilityDelay)
	if err != nil {
		return nil, upstreamError("failed to list reports", err)
	}
	return list, nil
}

// Get returns a single report regardless of the visibility delay.
func (s *Service) Get(ctx context.Context, reportID string) (*models.Report, error) {
	id, err := lifecycle.ParseReportID(reportID)
	if err != nil {
		return nil, validationError("invalid reportId", err)
	}
	r, err := s.store.GetReport(ctx, id)
	if errors.Is(err, database.ErrReportNotFound) {
		return nil, notFoundError("report not found", err)
	}
	if err != nil {
		return nil, upstreamError("failed to get report", err)
	}
	return r, nil
}

func (s *Service) publish(ctx context.Context, eventType string, r *models.Report) {
	if s.events == nil {
		return
	}
	event := models.ReportEvent{
		Type:           eventType,
		ReportID:       r.ID,
		Mode:           r.Mode,
		Status:         r.Status,
		AcknowledgedBy: r.AcknowledgedBy,
		Timestamp:      s.opts.Now().UTC(),
	}
	if r.Location != nil {
		lat, lng := r.Location.Latitude, r.Location.Longitude
		event.Latitude = &lat
		event.Longitude = &lng
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		log.Errorf("Failed to publish %s for report %d: %v", eventType, r.ID, err)
	}
}
