package models

import (
	"time"
)

// Mode is the attachment category of a report.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
	ModeForm  Mode = "form"
)

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
)

// MediaKind is the semantic slot an attachment was classified into.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Location is a geolocation triple. Accuracy is optional.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

// Attachment is a classified media reference stored by the object storage.
type Attachment struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// Report represents a row of the reports table
type Report struct {
	ID             int64       `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Phone          string      `json:"phone" db:"phone"`
	ComplaintText  string      `json:"complaintText" db:"complaint"`
	Location       *Location   `json:"location"`
	Cell           string      `json:"cell,omitempty" db:"s2_cell"`
	AudioURL       string      `json:"-" db:"audio_url"`
	VideoURL       string      `json:"-" db:"video_url"`
	Attachment     *Attachment `json:"attachment"`
	Mode           Mode        `json:"mode" db:"mode"`
	Status         Status      `json:"status" db:"status"`
	AcknowledgedBy *int64      `json:"acknowledgedBy" db:"acknowledged_by"`
	AcknowledgedAt *time.Time  `json:"acknowledgedAt,omitempty" db:"acknowledged_at"`
	SubmittedAt    time.Time   `json:"submittedAt" db:"submitted_at"`
}

// BroadcastMessage represents a message sent to live viewers
type BroadcastMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageReportsChanged tells a viewer to re-fetch the listing.
const MessageReportsChanged = "reports_changed"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	Notifications    int64  `json:"notifications"`
	LastNotification string `json:"last_notification,omitempty"`
	// EventsConnected is set only when report events are configured.
	EventsConnected *bool `json:"events_connected,omitempty"`
}

// ReportEvent is published to the message broker on every state transition.
type ReportEvent struct {
	Type           string    `json:"type"`
	ReportID       int64     `json:"report_id"`
	Mode           Mode      `json:"mode"`
	Status         Status    `json:"status"`
	AcknowledgedBy *int64    `json:"acknowledged_by,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	EventReportCreated      = "report.created"
	EventReportAcknowledged = "report.acknowledged"
)

// PrimaryAttachment picks the canonical attachment from the two slots: video if filled,
// else audio, else none.
func PrimaryAttachment(audioURL, videoURL string) *Attachment {
	if videoURL != "" {
		return &Attachment{Kind: MediaVideo, URL: videoURL}
	}
	if audioURL != "" {
		return &Attachment{Kind: MediaAudio, URL: audioURL}
	}
	return nil
}

// PrimaryAttachment returns the canonical attachment of the stored slots.
func (r *Report) PrimaryAttachment() *Attachment {
	return PrimaryAttachment(r.AudioURL, r.VideoURL)
}
