package intake

import (
	"sosdesk/models"
)

// BuildReport assembles the canonical pending record. ID and SubmittedAt are left for the store.
func BuildReport(fields Fields, attachments Attachments) models.Report {
	return models.Report{
		Name:          fields.Name,
		Phone:         fields.Phone,
		ComplaintText: fields.ComplaintText,
		Location:      fields.Location,
		AudioURL:      attachments.Audio,
		VideoURL:      attachments.Video,
		Attachment:    attachments.Primary(),
		Mode:          attachments.Mode(),
		Status:        models.StatusPending,
	}
}
