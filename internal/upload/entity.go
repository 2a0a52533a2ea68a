// Package upload implements the upload pipeline: classify the file, stage it
// in object storage, gate it on a malware scan, and only then commit its
// metadata record. A record in the uploads table exists if and only if the
// underlying object passed the scan.
package upload

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category buckets an upload by its declared content type. It is advisory
// metadata for organizing storage paths and listings — never a security
// decision; the scan verdict is the sole gate.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryVideo    Category = "video"
	CategoryOther    Category = "other"
)

// documentTypes are the exact content types filed under CategoryDocument.
var documentTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
}

// Categorize maps a declared content type to its category. The rules are
// checked in fixed order with a catch-all, so every input yields exactly one
// category. Case and surrounding whitespace in the declared type are ignored.
func Categorize(contentType string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return CategoryImage
	case isDocumentType(ct):
		return CategoryDocument
	case strings.HasPrefix(ct, "video/"):
		return CategoryVideo
	default:
		return CategoryOther
	}
}

func isDocumentType(ct string) bool {
	_, ok := documentTypes[ct]
	return ok
}

// Upload is the metadata record for a committed (scan-passed) object.
type Upload struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	OriginalFilename string    `json:"originalFilename"`
	StoragePath      string    `json:"storagePath"`
	Category         Category  `json:"category"`
	ContentType      string    `json:"contentType"`
	SizeBytes        int64     `json:"sizeBytes"`
	AccessURL        string    `json:"accessUrl"`
	AccessExpiresAt  time.Time `json:"accessUrlExpiresAt"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// buildStoragePath generates the unique object key for a new upload:
// category/ownerID/<unix-millis>-<uuid>-<sanitized name>. The uuid makes
// concurrent uploads collision-free; the millis prefix keeps keys humanly
// sortable but carries no uniqueness guarantee.
func buildStoragePath(category Category, ownerID, originalFilename string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s-%s",
		category, ownerID, now.UnixMilli(), uuid.NewString(), sanitizeFilename(originalFilename))
}

const maxSanitizedLen = 64

// sanitizeFilename reduces a user-supplied filename to a safe path component:
// base name only, whitelisted characters, bounded length, never empty.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.Trim(name, ".")
	if len(name) > maxSanitizedLen {
		name = name[:maxSanitizedLen]
	}
	if name == "" {
		return "file"
	}
	return name
}
