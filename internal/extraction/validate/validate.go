// Package validate implements the pre-flight checks that reject unsupported,
// oversized or corrupt images before any engine work is scheduled.
//
// Checks run cheapest first:
//   - existence and file type (stat only)
//   - absolute size ceiling (stat only)
//   - magic-byte sniffing on a fixed prefix
//   - per-format size ceiling
//   - header decode for corruption and dimensions
//   - peak memory estimate
package validate

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

// Report describes an image that passed validation.
type Report struct {
	Format          domain.ImageFormat
	MIME            string
	Size            int64
	Width           int
	Height          int
	EstimatedMemory int64
}

// EstimatedMemoryMB returns the memory estimate in megabytes.
func (r Report) EstimatedMemoryMB() float64 {
	return float64(r.EstimatedMemory) / (1 << 20)
}

var mimeFormats = map[string]domain.ImageFormat{
	"image/png":  domain.FormatPNG,
	"image/jpeg": domain.FormatJPEG,
	"image/gif":  domain.FormatGIF,
	"image/webp": domain.FormatWebP,
	"image/bmp":  domain.FormatBMP,
	"image/tiff": domain.FormatTIFF,
}

// Check validates ref against cfg. Every rejection is a *domain.Error of kind
// KindValidation.
func Check(ref domain.ImageRef, cfg domain.EngineConfig) (Report, error) {
	size, err := stat(ref)
	if err != nil {
		return Report{}, err
	}

	if size > cfg.MaxFileSize {
		return Report{}, domain.NewValidationError(domain.ReasonTooLarge, fmt.Sprintf(
			"image is %s, limit is %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(cfg.MaxFileSize))))
	}

	prefix, err := readPrefix(ref, cfg.FormatBufferSize)
	if err != nil {
		return Report{}, err
	}

	mtype := mimetype.Detect(prefix)
	format, ok := lookupMIME(mtype)
	if !ok {
		return Report{}, domain.NewValidationError(domain.ReasonUnsupportedFormat,
			fmt.Sprintf("unsupported image format %s", mtype.String()))
	}

	if limit := cfg.FormatLimit(format); size > limit {
		return Report{}, domain.NewValidationError(domain.ReasonFormatTooLarge, fmt.Sprintf(
			"%s image is %s, limit for %s is %s",
			format, humanize.IBytes(uint64(size)), format, humanize.IBytes(uint64(limit))))
	}

	width, height, err := decodeHeader(ref)
	if err != nil {
		return Report{}, err
	}

	estimate := EstimateMemory(size, format)
	if estimate > cfg.MaxMemory {
		return Report{}, domain.NewValidationError(domain.ReasonMemoryExceeded, fmt.Sprintf(
			"estimated decode memory %s exceeds %s",
			humanize.IBytes(uint64(estimate)), humanize.IBytes(uint64(cfg.MaxMemory))))
	}

	return Report{
		Format:          format,
		MIME:            mtype.String(),
		Size:            size,
		Width:           width,
		Height:          height,
		EstimatedMemory: estimate,
	}, nil
}

// EstimateMemory returns size × the format's compression factor.
func EstimateMemory(size int64, format domain.ImageFormat) int64 {
	est := float64(size) * format.Compression().MemoryFactor()
	if est >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(est)
}

func stat(ref domain.ImageRef) (int64, error) {
	if !ref.IsPath() {
		if len(ref.Data) == 0 {
			return 0, domain.NewValidationError(domain.ReasonEmpty, "image is empty")
		}
		return int64(len(ref.Data)), nil
	}

	info, err := os.Stat(ref.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, domain.NewValidationError(domain.ReasonNotFound, fmt.Sprintf("%s does not exist", ref.Path))
		}
		return 0, &domain.Error{
			Kind:    domain.KindValidation,
			Reason:  domain.ReasonNotFound,
			Message: fmt.Sprintf("cannot stat %s", ref.Path),
			Err:     err,
		}
	}
	if !info.Mode().IsRegular() {
		return 0, domain.NewValidationError(domain.ReasonNotRegular, fmt.Sprintf("%s is not a regular file", ref.Path))
	}
	if info.Size() == 0 {
		return 0, domain.NewValidationError(domain.ReasonEmpty, fmt.Sprintf("%s is empty", ref.Path))
	}
	return info.Size(), nil
}

func readPrefix(ref domain.ImageRef, n int) ([]byte, error) {
	rc, err := ref.Open()
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonNotFound, Message: "cannot open image", Err: err}
	}
	defer rc.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonCorrupt, Message: "cannot read image", Err: err}
	}
	return buf[:read], nil
}

func decodeHeader(ref domain.ImageRef) (int, int, error) {
	rc, err := ref.Open()
	if err != nil {
		return 0, 0, &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonNotFound, Message: "cannot open image", Err: err}
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonCorrupt, Message: "image header does not decode", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, domain.NewValidationError(domain.ReasonCorrupt,
			fmt.Sprintf("image reports invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}
	return cfg.Width, cfg.Height, nil
}

func lookupMIME(m *mimetype.MIME) (domain.ImageFormat, bool) {
	for ; m != nil; m = m.Parent() {
		if f, ok := mimeFormats[m.String()]; ok {
			return f, true
		}
	}
	return "", false
}
