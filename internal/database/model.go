package database

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("file record not found")

// FileRecord is one logical file or folder. Several records may share a
// StoragePath; that is how deduplicated uploads reuse stored bytes.
type FileRecord struct {
	ID           string
	Name         string
	OriginalName string
	StoragePath  string // empty for folders without a path prefix
	Size         int64
	ContentType  string
	Fingerprint  string // empty for folders and empty files
	OwnerID      string
	ParentID     string // empty means root
	IsFolder     bool
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

func DeriveFileType(contentType string) FileType {
	if strings.HasPrefix(contentType, "image/") {
		return FileTypeImage
	}
	if strings.HasPrefix(contentType, "video/") {
		return FileTypeVideo
	}
	if strings.HasPrefix(contentType, "audio/") {
		return FileTypeAudio
	}
	if strings.Contains(contentType, "pdf") {
		return FileTypeDocument
	}
	return FileTypeOther
}

// ListFilter selects the live children of one folder.
type ListFilter struct {
	OwnerID  string
	ParentID string
	Limit    int
	Offset   int
}
