// Package storage keeps uploaded media outside the database and hands back a retrieval URL.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object is one uploaded file part.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores an object and returns a stable URL for it.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// ObjectKey builds a collision-free key, grouped by day: 2024/05/01/<uuid>-<name>.
func ObjectKey(name string, now time.Time) string {
	return path.Join(now.UTC().Format("2006/01/02"), uuid.NewString()+"-"+sanitizeName(name))
}

// sanitizeName keeps the base name and replaces anything outside [A-Za-z0-9._-].
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "upload"
	}
	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	return s
}
