// Package intake turns a raw, loosely structured submission into the fields of a
// canonical report. Nothing in this package fails: bad input degrades to empty values.
package intake

import (
	"math"
	"strconv"
	"strings"

	"sosdesk/models"
)

// Fields holds the submitter-supplied values after normalization.
type Fields struct {
	Name          string
	Phone         string
	ComplaintText string
	Location      *models.Location
}

// complaintAliases lists the keys holding the complaint text, by priority.
var complaintAliases = []string{"complaint", "text"}

// phoneAliases is the closed, ordered set of keys accepted for the phone number.
// Keys outside this list are never matched.
var phoneAliases = []string{
	"phone",
	"phoneNumber",
	"phone_number",
	"phonenumber",
	"mobile",
	"mobileNumber",
	"mobile_number",
	"contact",
	"contactNumber",
	"contact_number",
	"tel",
	"telephone",
}

// NormalizeFields extracts name, complaint, phone and location from a submitted form.
func NormalizeFields(raw map[string]string) Fields {
	return Fields{
		Name:          strings.TrimSpace(raw["name"]),
		Phone:         firstNonEmpty(raw, phoneAliases),
		ComplaintText: firstPresent(raw, complaintAliases),
		Location:      parseLocation(raw),
	}
}

// firstPresent returns the value of the first alias present in raw, even if blank.
func firstPresent(raw map[string]string, aliases []string) string {
	for _, key := range aliases {
		if value, ok := raw[key]; ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func firstNonEmpty(raw map[string]string, aliases []string) string {
	for _, key := range aliases {
		if value := strings.TrimSpace(raw[key]); value != "" {
			return value
		}
	}
	return ""
}

// parseLocation returns nil unless both coordinates are present and finite.
func parseLocation(raw map[string]string) *models.Location {
	lat, ok := parseFinite(raw["latitude"])
	if !ok {
		return nil
	}
	lng, ok := parseFinite(raw["longitude"])
	if !ok {
		return nil
	}
	loc := &models.Location{Latitude: lat, Longitude: lng}
	if acc, ok := parseFinite(raw["accuracy"]); ok {
		loc.Accuracy = &acc
	}
	return loc
}

func parseFinite(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
