// Package tesseract adapts gosseract to engine.Engine.
//
// Building this package requires the Tesseract and Leptonica development
// headers (cgo). On Ubuntu/Debian:
//
//	apt-get install libtesseract-dev libleptonica-dev tesseract-ocr-eng
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

// warmupImage is a blank 1x1 PNG recognized once at construction so the
// expensive Tesseract init happens in the pool, not on the first request.
var warmupImage = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}()

// Engine is a single initialized gosseract client.
type Engine struct {
	client *gosseract.Client
}

var _ engine.Engine = (*Engine)(nil)

// New is an engine.Factory that builds and warms a Tesseract client for cfg.
func New(cfg domain.EngineConfig) (engine.Engine, error) {
	c := gosseract.NewClient()
	if err := configure(c, cfg); err != nil {
		c.Close()
		return nil, domain.NewError(domain.KindInitialization, "configure tesseract", err)
	}

	if err := c.SetImageFromBytes(warmupImage); err != nil {
		c.Close()
		return nil, domain.NewError(domain.KindInitialization, "warm up tesseract", err)
	}
	if _, err := c.Text(); err != nil {
		c.Close()
		return nil, domain.NewError(domain.KindInitialization, "warm up tesseract", err)
	}

	return &Engine{client: c}, nil
}

func configure(c *gosseract.Client, cfg domain.EngineConfig) error {
	if dir := tessdataDir(cfg); dir != "" {
		if err := c.SetTessdataPrefix(dir); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(strings.Split(cfg.Key().LanguageSet, "+")...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		return fmt.Errorf("set page seg mode: %w", err)
	}
	if cfg.Whitelist != "" {
		if err := c.SetWhitelist(cfg.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	if cfg.UserWordsFile != "" {
		if err := c.SetVariable("user_words_file", cfg.UserWordsFile); err != nil {
			return fmt.Errorf("set user words file: %w", err)
		}
	}
	if cfg.UserPatternsFile != "" {
		if err := c.SetVariable("user_patterns_file", cfg.UserPatternsFile); err != nil {
			return fmt.Errorf("set user patterns file: %w", err)
		}
	}
	return nil
}

func tessdataDir(cfg domain.EngineConfig) string {
	if cfg.Accuracy == domain.AccuracyFast {
		return cfg.TessdataFastDir
	}
	return cfg.TessdataBestDir
}

// Recognize implements engine.Engine. The gosseract call cannot be
// interrupted; ctx is only checked before it starts.
func (e *Engine) Recognize(ctx context.Context, img domain.ImageRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewError(domain.KindExtraction, "recognition cancelled before start", err)
	}

	var err error
	if img.IsPath() {
		err = e.client.SetImage(img.Path)
	} else {
		err = e.client.SetImageFromBytes(img.Data)
	}
	if err != nil {
		return "", domain.NewError(domain.KindImageLoad, "load "+img.Label(), err)
	}

	text, err := e.client.Text()
	if err != nil {
		return "", domain.NewError(domain.KindExtraction, "recognize "+img.Label(), err)
	}
	return strings.TrimSpace(text), nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	return e.client.Close()
}
