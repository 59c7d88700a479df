package intake

import (
	"strings"

	"sosdesk/models"
)

// File describes an uploaded file part after the object storage accepted it.
type File struct {
	ContentType string
	URL         string
}

// Attachments holds at most one reference per media slot.
type Attachments struct {
	Audio string
	Video string
}

// ClassifyAttachments assigns files to the audio and video slots by declared media type.
// Files of any other type are ignored.
func ClassifyAttachments(files []File) Attachments {
	var slots Attachments
	for _, f := range files {
		switch classify(f.ContentType) {
		case models.MediaAudio:
			slots.Audio = keepLast(slots.Audio, f.URL)
		case models.MediaVideo:
			slots.Video = keepLast(slots.Video, f.URL)
		}
	}
	return slots
}

// keepLast is the tie-break between two files of the same kind: the later one wins,
// dropping the earlier reference.
func keepLast(current, next string) string {
	return next
}

func classify(contentType string) models.MediaKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return models.MediaAudio
	case strings.HasPrefix(ct, "video/"):
		return models.MediaVideo
	default:
		return ""
	}
}

// Mode derives the report mode from the primary attachment: video wins over audio, and
// form is the fallback.
func (a Attachments) Mode() models.Mode {
	primary := a.Primary()
	if primary == nil {
		return models.ModeForm
	}
	if primary.Kind == models.MediaVideo {
		return models.ModeVideo
	}
	return models.ModeAudio
}

// Primary returns the canonical attachment.
func (a Attachments) Primary() *models.Attachment {
	return models.PrimaryAttachment(a.Audio, a.Video)
}

// IsMedia reports whether a declared type would be kept by the classifier.
func IsMedia(contentType string) bool {
	return classify(contentType) != ""
}
