package domain

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ImageRef points at the image to recognize: a file on disk or an in-memory
// upload. Exactly one of Path and Data is set.
type ImageRef struct {
	Path string
	Data []byte
	// Name is used for logging only.
	Name string
}

// PathRef builds an ImageRef for a file on disk.
func PathRef(path string) ImageRef {
	return ImageRef{Path: path, Name: filepath.Base(path)}
}

// BytesRef builds an ImageRef for an in-memory image.
func BytesRef(name string, data []byte) ImageRef {
	return ImageRef{Data: data, Name: name}
}

// IsPath reports whether the image lives on disk.
func (r ImageRef) IsPath() bool {
	return r.Path != ""
}

// Label returns a short name for log lines.
func (r ImageRef) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Path != "" {
		return filepath.Base(r.Path)
	}
	return "upload"
}

// Open returns a reader over the image contents.
func (r ImageRef) Open() (io.ReadCloser, error) {
	if r.IsPath() {
		return os.Open(r.Path)
	}
	return io.NopCloser(bytes.NewReader(r.Data)), nil
}

// ExtractionRequest is one caller submission.
type ExtractionRequest struct {
	ID     string
	Image  ImageRef
	Engine EngineConfig
	Policy RecoveryPolicy
}

// ExtractionResult is returned on success.
type ExtractionResult struct {
	RequestID       string
	Text            string
	TotalDuration   time.Duration
	EngineDuration  time.Duration
	Attempts        int
	Format          ImageFormat
	ImageSize       int64
	EstimatedMemory int64
}
