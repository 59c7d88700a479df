package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sosdesk/config"
	"sosdesk/database"
	"sosdesk/handlers"
	"sosdesk/lifecycle"
	"sosdesk/rabbitmq"
	"sosdesk/relay"
	"sosdesk/reports"
	"sosdesk/storage"
	"sosdesk/websocket"

	"github.com/apex/log"
)

// Service owns the collaborators of the intake service and their lifecycle
type Service struct {
	config    *config.Config
	db        *database.Database
	hub       *websocket.Hub
	relay     *relay.Relay
	publisher *rabbitmq.Publisher
	disk      *storage.Disk
	reports   *reports.Service
	handlers  *handlers.Handlers
}

// NewService connects to the database and optional collaborators and wires the handlers
func NewService(cfg *config.Config) (*Service, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize database
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()

	s := &Service{
		config: cfg,
		db:     db,
		hub:    hub,
	}

	// Fanout goes through Redis when configured so every replica's viewers are notified
	var notifier reports.Notifier = hub
	if cfg.RedisURL != "" {
		r, err := relay.New(cfg.RedisURL, cfg.RedisChannel, hub)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		s.relay = r
		notifier = r
	}

	uploader, err := s.newUploader(ctx)
	if err != nil {
		s.closeAll()
		return nil, err
	}

	var events reports.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.Warnf("Report events disabled, failed to connect to RabbitMQ: %v", err)
		} else {
			s.publisher = p
			events = p
		}
	}

	s.reports = reports.New(db, uploader, notifier, events, reports.Options{
		VisibilityDelay: cfg.VisibilityDelay,
		AckPolicy:       lifecycle.ParsePolicy(cfg.AckPolicy),
	})
	s.handlers = handlers.NewHandlers(hub, s.reports, cfg.MaxUploadMB)
	if s.publisher != nil {
		s.handlers.SetEvents(s.publisher)
	}

	return s, nil
}

func (s *Service) newUploader(ctx context.Context) (storage.Uploader, error) {
	if s.config.MinIOEndpoint != "" {
		m, err := storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  s.config.MinIOEndpoint,
			AccessKey: s.config.MinIOAccessKey,
			SecretKey: s.config.MinIOSecretKey,
			Bucket:    s.config.MinIOBucket,
			UseSSL:    s.config.MinIOUseSSL,
			PublicURL: s.config.MinIOPublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		log.Infof("Storing attachments in bucket %s at %s", s.config.MinIOBucket, s.config.MinIOEndpoint)
		return m, nil
	}

	d, err := storage.NewDisk(s.config.UploadDir, s.config.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload directory: %w", err)
	}
	s.disk = d
	log.Infof("Storing attachments in %s", d.Dir())
	return d, nil
}

// Start starts the service
func (s *Service) Start() error {
	log.Info("Starting sosdesk service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.db.EnsureReportsTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure reports table: %w", err)
	}

	if s.relay != nil {
		if err := s.relay.Start(context.Background()); err != nil {
			return err
		}
	}

	log.Info("sosdesk service started successfully")
	return nil
}

// Stop stops the service gracefully
func (s *Service) Stop() error {
	log.Info("Stopping sosdesk service...")
	s.hub.Close()
	s.closeAll()
	log.Info("sosdesk service stopped")
	return nil
}

func (s *Service) closeAll() {
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			log.Warnf("Error closing redis relay: %v", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Warnf("Error closing publisher: %v", err)
		}
	}
	if err := s.db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}
}

// GetHandlers returns the HTTP handlers
func (s *Service) GetHandlers() *handlers.Handlers {
	return s.handlers
}

// LocalUploads returns the directory and URL path of attachments stored on disk, or
// ok=false when attachments live in object storage or under an absolute URL.
func (s *Service) LocalUploads() (dir, urlPath string, ok bool) {
	if s.disk == nil || !strings.HasPrefix(s.config.PublicBaseURL, "/") {
		return "", "", false
	}
	return s.disk.Dir(), s.config.PublicBaseURL, true
}
