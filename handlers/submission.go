package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"sosdesk/intake"
	"sosdesk/reports"

	"github.com/apex/log"
)

const maxFieldBytes = 64 << 10

// errFieldTooLarge is returned for a multipart text field longer than maxFieldBytes.
var errFieldTooLarge = errors.New("form field too large")

// flexibleID accepts a JSON string or number and keeps its text form.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// readSubmission collects the first value of every form field and the media file parts in
// the order they were sent. File parts are spooled to temp files removed by cleanup.
func readSubmission(w http.ResponseWriter, r *http.Request, maxBytes int64) (map[string]string, []reports.Upload, func(), error) {
	fields := map[string]string{}
	var temps []string
	cleanup := func() {
		for _, name := range temps {
			if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
				log.Warnf("Failed to remove temp upload %s: %v", name, err)
			}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseForm(); err != nil {
			return nil, nil, cleanup, err
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
		return fields, nil, cleanup, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, cleanup, err
	}

	var uploads []reports.Upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, cleanup, err
		}

		name := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			part.Close()
			if err != nil {
				return nil, nil, cleanup, err
			}
			if len(value) > maxFieldBytes {
				return nil, nil, cleanup, fmt.Errorf("%w: %s", errFieldTooLarge, name)
			}
			if _, seen := fields[name]; !seen && name != "" {
				fields[name] = string(value)
			}
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if !intake.IsMedia(contentType) {
			log.WithField("content_type", contentType).Debug("Skipping non-media file part")
			if _, err := io.Copy(io.Discard, part); err != nil {
				part.Close()
				return nil, nil, cleanup, err
			}
			part.Close()
			continue
		}

		path, size, err := spool(part)
		part.Close()
		if path != "" {
			temps = append(temps, path)
		}
		if err != nil {
			return nil, nil, cleanup, err
		}
		uploads = append(uploads, reports.Upload{
			Name:        part.FileName(),
			ContentType: contentType,
			Size:        size,
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		})
	}
	return fields, uploads, cleanup, nil
}

func spool(src io.Reader) (string, int64, error) {
	f, err := os.CreateTemp("", "sosdesk-upload-*")
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return f.Name(), size, err
}
