package handler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vietddude/ocrguard/internal/api/middleware"
	"github.com/vietddude/ocrguard/internal/core/domain"
)

// inputError is a request that never reached the service.
type inputError struct {
	status int
	code   string
	msg    string
}

func (e *inputError) Error() string { return e.msg }

// Extract returns a handler for POST /api/v1/extract.
//
// The image is either a multipart "image" file or, when allowPaths is set, a
// JSON body {"path": "..."} naming a file on the server. maxBody caps the
// request body.
func Extract(svc Service, maxBody int64, allowPaths bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString(middleware.RequestIDKey)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ref, err := readImage(c, maxBody, allowPaths)
		if err != nil {
			respondError(c, svc, requestID, err)
			return
		}

		res, err := svc.Extract(c.Request.Context(), domain.ExtractionRequest{ID: requestID, Image: ref})
		if err != nil {
			respondError(c, svc, requestID, err)
			return
		}

		c.JSON(http.StatusOK, ExtractResponse{
			Success:   true,
			RequestID: res.RequestID,
			Text:      res.Text,
			Attempts:  res.Attempts,
			Timing: &TimingInfo{
				TotalMs:  time.Since(start).Milliseconds(),
				EngineMs: res.EngineDuration.Milliseconds(),
			},
			Image: &ImageInfo{Format: string(res.Format), Size: res.ImageSize},
		})
	}
}

func readImage(c *gin.Context, maxBody int64, allowPaths bool) (domain.ImageRef, error) {
	if c.ContentType() == gin.MIMEJSON {
		if !allowPaths {
			return domain.ImageRef{}, &inputError{http.StatusForbidden, ErrCodeForbidden, "path input is disabled on this server"}
		}
		var req PathRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return domain.ImageRef{}, &inputError{http.StatusBadRequest, ErrCodeInvalidInput, err.Error()}
		}
		return domain.PathRef(req.Path), nil
	}

	if maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			return domain.ImageRef{}, domain.NewValidationError(domain.ReasonTooLarge,
				fmt.Sprintf("request body exceeds %s", humanize.Bytes(uint64(maxBody))))
		}
		return domain.ImageRef{}, &inputError{http.StatusBadRequest, ErrCodeInvalidInput, "multipart field \"image\" is required"}
	}

	f, err := fh.Open()
	if err != nil {
		return domain.ImageRef{}, &inputError{http.StatusBadRequest, ErrCodeInvalidInput, "open upload: " + err.Error()}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.ImageRef{}, &inputError{http.StatusBadRequest, ErrCodeInvalidInput, "read upload: " + err.Error()}
	}
	return domain.BytesRef(fh.Filename, data), nil
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// respondError writes a structured error with the status for err.
func respondError(c *gin.Context, svc Service, requestID string, err error) {
	_ = c.Error(err)

	var in *inputError
	if errors.As(err, &in) {
		c.JSON(in.status, ExtractResponse{
			RequestID: requestID,
			Error:     &ErrorDetail{Code: in.code, Message: in.msg},
		})
		return
	}

	status := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(svc.Status().Circuit.RetryAfter)))
	}

	detail := &ErrorDetail{
		Code:    string(domain.KindOf(err)),
		Reason:  domain.ReasonOf(err),
		Message: err.Error(),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		detail.Message = de.Message
	}
	c.JSON(status, ExtractResponse{RequestID: requestID, Error: detail})
}

// StatusFor maps an extraction error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		switch domain.ReasonOf(err) {
		case domain.ReasonTooLarge, domain.ReasonFormatTooLarge, domain.ReasonMemoryExceeded:
			return http.StatusRequestEntityTooLarge
		case domain.ReasonUnsupportedFormat:
			return http.StatusUnsupportedMediaType
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
