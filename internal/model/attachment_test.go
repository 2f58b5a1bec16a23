package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		wantType    FileType
		wantCT      string
		wantOK      bool
	}{
		{"declared png", "image/png", "map.png", FileTypeImage, "image/png", true},
		{"declared with params", "image/jpeg; charset=binary", "photo.jpg", FileTypeImage, "image/jpeg", true},
		{"pdf", "application/pdf", "rules.pdf", FileTypePDF, "application/pdf", true},
		{"extension fallback", "", "clue.png", FileTypeImage, "image/png", true},
		{"octet-stream fallback", "application/octet-stream", "theme.mp3", FileTypeAudio, "audio/mpeg", true},
		{"uppercase extension", "", "MAP.PNG", FileTypeImage, "image/png", true},
		{"executable rejected", "application/x-msdownload", "tool.exe", "", "application/x-msdownload", false},
		{"unknown extension", "", "archive.zip", "", "", false},
		{"svg rejected", "image/svg+xml", "icon.svg", "", "image/svg+xml", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft, ct, ok := DetectFileType(tt.contentType, tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantType, ft)
				assert.Equal(t, tt.wantCT, ct)
			}
		})
	}
}

func TestMaxSizeFor(t *testing.T) {
	assert.EqualValues(t, 10*MiB, MaxSizeFor(FileTypeImage))
	assert.EqualValues(t, 20*MiB, MaxSizeFor(FileTypePDF))
	assert.EqualValues(t, 50*MiB, MaxSizeFor(FileTypeAudio))
	assert.EqualValues(t, 100*MiB, MaxSizeFor(FileTypeVideo))
	assert.EqualValues(t, 10*MiB, MaxSizeFor(FileTypeDocument))
}
