package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypePDF      FileType = "pdf"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
)

const MiB = 1 << 20

// contentTypeToFileType is the fixed allow-list; anything else is rejected.
var contentTypeToFileType = map[string]FileType{
	"image/jpeg": FileTypeImage,
	"image/png":  FileTypeImage,
	"image/gif":  FileTypeImage,
	"image/webp": FileTypeImage,

	"application/pdf": FileTypePDF,

	"audio/mpeg": FileTypeAudio,
	"audio/wav":  FileTypeAudio,
	"audio/ogg":  FileTypeAudio,
	"audio/m4a":  FileTypeAudio,

	"video/mp4":       FileTypeVideo,
	"video/webm":      FileTypeVideo,
	"video/ogg":       FileTypeVideo,
	"video/quicktime": FileTypeVideo,

	"text/plain":         FileTypeDocument,
	"application/msword": FileTypeDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FileTypeDocument,
}

// extensionContentType is the server-side fallback for clients that do not
// declare a content type.
var extensionContentType = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/m4a",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var fileTypeMaxSize = map[FileType]int64{
	FileTypeImage:    10 * MiB,
	FileTypePDF:      20 * MiB,
	FileTypeAudio:    50 * MiB,
	FileTypeVideo:    100 * MiB,
	FileTypeDocument: 10 * MiB,
}

// DetectFileType resolves the declared content type (falling back to the
// filename extension) against the allow-list. ok is false when neither maps.
func DetectFileType(contentType, filename string) (FileType, string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	if ct == "" || ct == "application/octet-stream" {
		if mapped, ok := extensionContentType[strings.ToLower(filepath.Ext(filename))]; ok {
			ct = mapped
		}
	}

	ft, ok := contentTypeToFileType[ct]
	return ft, ct, ok
}

// MaxSizeFor returns the hard per-type size cap in bytes.
func MaxSizeFor(ft FileType) int64 {
	return fileTypeMaxSize[ft]
}

type Attachment struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	HandoutID        uuid.UUID `gorm:"type:uuid;not null;index" json:"handout_id"`
	UploaderID       uuid.UUID `gorm:"type:uuid;not null" json:"uploader_id"`
	FileURL          string    `gorm:"type:text;not null" json:"file_url"`
	StoragePath      string    `gorm:"type:text;not null" json:"-"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	ContentType      string    `gorm:"size:100;not null" json:"content_type"`
	FileType         FileType  `gorm:"size:20;not null" json:"file_type"`
	SizeBytes        int64     `gorm:"not null" json:"size_bytes"`
	Description      *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`

	Uploader *User `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	return
}

// OrphanBlob queues blobs whose metadata row is gone but whose storage delete
// has not succeeded yet. A background sweep retries these.
type OrphanBlob struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileURL   string    `gorm:"type:text;not null" json:"file_url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
