package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Accuracy selects the trained-data tier the engine loads.
type Accuracy string

const (
	AccuracyFast Accuracy = "fast"
	AccuracyBest Accuracy = "best"
)

// Valid reports whether a is a known tier.
func (a Accuracy) Valid() bool {
	return a == AccuracyFast || a == AccuracyBest
}

// Tesseract page segmentation modes accepted by EngineConfig.
const (
	PageSegModeOSDOnly     = 0
	PageSegModeAuto        = 3
	PageSegModeSingleBlock = 6
	PageSegModeSparseText  = 11
	PageSegModeRawLine     = 13
)

const (
	DefaultFormatBufferSize = 512
	DefaultMaxFileSize      = 50 << 20
	DefaultMaxMemory        = 256 << 20
)

// ImageFormat is a sniffed input image format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatGIF  ImageFormat = "gif"
	FormatWebP ImageFormat = "webp"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
)

// Compression groups formats by how much memory decoding takes relative to
// the encoded size.
type Compression int

const (
	CompressionLossless Compression = iota
	CompressionLossy
	CompressionNone
	CompressionLayered
)

// Compression returns the class of f.
func (f ImageFormat) Compression() Compression {
	switch f {
	case FormatJPEG, FormatWebP:
		return CompressionLossy
	case FormatBMP:
		return CompressionNone
	case FormatTIFF:
		return CompressionLayered
	default:
		return CompressionLossless
	}
}

// MemoryFactor is the multiplier applied to the file size to estimate peak
// decode memory.
func (c Compression) MemoryFactor() float64 {
	switch c {
	case CompressionLossy:
		return 2.5
	case CompressionNone:
		return 1.2
	case CompressionLayered:
		return 4.0
	default:
		return 3.0
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionLossy:
		return "lossy"
	case CompressionNone:
		return "uncompressed"
	case CompressionLayered:
		return "layered"
	default:
		return "lossless"
	}
}

// SupportedFormats lists every format the validator accepts.
var SupportedFormats = []ImageFormat{FormatPNG, FormatJPEG, FormatGIF, FormatWebP, FormatBMP, FormatTIFF}

// DefaultFormatLimits are the per-format size ceilings in bytes. Lossless
// formats get the most room, uncompressed ones the least.
var DefaultFormatLimits = map[ImageFormat]int64{
	FormatPNG:  50 << 20,
	FormatGIF:  20 << 20,
	FormatJPEG: 25 << 20,
	FormatWebP: 25 << 20,
	FormatTIFF: 30 << 20,
	FormatBMP:  10 << 20,
}

// EngineConfig describes how a recognition engine is initialized and which
// inputs it is allowed to see. It is loaded once and never mutated.
type EngineConfig struct {
	Languages        []string
	Accuracy         Accuracy
	PageSegMode      int
	UserWordsFile    string
	UserPatternsFile string
	Whitelist        string
	TessdataFastDir  string
	TessdataBestDir  string

	FormatBufferSize int
	MaxFileSize      int64
	MaxMemory        int64
	FormatLimits     map[ImageFormat]int64
}

// DefaultEngineConfig returns an English, best-accuracy configuration with
// the default ceilings.
func DefaultEngineConfig() EngineConfig {
	limits := make(map[ImageFormat]int64, len(DefaultFormatLimits))
	for f, n := range DefaultFormatLimits {
		limits[f] = n
	}
	return EngineConfig{
		Languages:        []string{"eng"},
		Accuracy:         AccuracyBest,
		PageSegMode:      PageSegModeSingleBlock,
		FormatBufferSize: DefaultFormatBufferSize,
		MaxFileSize:      DefaultMaxFileSize,
		MaxMemory:        DefaultMaxMemory,
		FormatLimits:     limits,
	}
}

// Validate checks the configuration for values the engine or validator
// cannot work with.
func (c EngineConfig) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("engine: at least one language is required")
	}
	for _, l := range c.Languages {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("engine: empty language code")
		}
	}
	if !c.Accuracy.Valid() {
		return fmt.Errorf("engine: unknown accuracy tier %q", c.Accuracy)
	}
	if c.PageSegMode < PageSegModeOSDOnly || c.PageSegMode > PageSegModeRawLine {
		return fmt.Errorf("engine: page segmentation mode %d out of range", c.PageSegMode)
	}
	if c.FormatBufferSize <= 0 {
		return fmt.Errorf("engine: format buffer size must be > 0")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("engine: max file size must be > 0")
	}
	if c.MaxMemory <= 0 {
		return fmt.Errorf("engine: max memory must be > 0")
	}
	for f, n := range c.FormatLimits {
		if n <= 0 {
			return fmt.Errorf("engine: size limit for %s must be > 0", f)
		}
	}
	return nil
}

// FormatLimit returns the size ceiling for f, falling back to the absolute
// ceiling when no format-specific one is set.
func (c EngineConfig) FormatLimit(f ImageFormat) int64 {
	if n, ok := c.FormatLimits[f]; ok && n > 0 {
		return n
	}
	if n, ok := DefaultFormatLimits[f]; ok && n < c.MaxFileSize {
		return n
	}
	return c.MaxFileSize
}

// Key returns the pool key for this configuration.
func (c EngineConfig) Key() PoolKey {
	return PoolKey{LanguageSet: LanguageSet(c.Languages), Accuracy: c.Accuracy}
}

// PoolKey identifies one pooled engine handle.
type PoolKey struct {
	LanguageSet string
	Accuracy    Accuracy
}

func (k PoolKey) String() string {
	return k.LanguageSet + "/" + string(k.Accuracy)
}

// LanguageSet normalizes a language list into the canonical "+"-joined form
// Tesseract expects, so ordering and duplicates do not split the pool.
func LanguageSet(langs []string) string {
	set := make([]string, 0, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set = append(set, l)
		}
	}
	slices.Sort(set)
	return strings.Join(slices.Compact(set), "+")
}
