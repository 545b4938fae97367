package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/facerecog/internal/logging"
	"github.com/example/facerecog/internal/usecase"
)

// DefaultMaxUploadSize bounds a whole upload request body when no limit is configured.
const DefaultMaxUploadSize = 20 << 20

// multipartMemory is how much of a form is held in memory before spilling to temp files.
const multipartMemory = 8 << 20

// Uploader is the subset of the use case the HTTP layer depends on.
type Uploader interface {
	Upload(ctx context.Context, req usecase.UploadRequest) (*usecase.UploadRecord, error)
	GetUpload(ctx context.Context, uploadID string) (*usecase.UploadRecord, error)
	GetUploadSummary(ctx context.Context) (*usecase.UploadSummary, error)
}

// Handler serves the upload API.
type Handler struct {
	uc             Uploader
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler constructs the HTTP handler. A non-positive limit selects DefaultMaxUploadSize.
func NewHandler(uc Uploader, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadSize
	}
	return &Handler{
		uc:             uc,
		logger:         logger.Named("handlers"),
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.MaxMultipartMemory = multipartMemory
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/upload-images", h.UploadImages)
	router.GET("/uploads/summary", h.UploadSummary)
	router.GET("/uploads/:id", h.GetUpload)
}

// UploadImages handles POST /upload-images.
func (h *Handler) UploadImages(c *gin.Context) {
	requestID := logging.RequestID(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	req := usecase.UploadRequest{RequestID: requestID}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Upload exceeds size limit"})
			return
		}
		// A body that is not a multipart form carries no files at all.
		h.logger.Debug("unparseable upload form", zap.Error(err), zap.String("request_id", requestID))
	} else {
		defer c.Request.MultipartForm.RemoveAll() //nolint:errcheck

		var closers []multipart.File
		defer func() {
			for _, f := range closers {
				f.Close()
			}
		}()

		for _, field := range []string{usecase.FieldProfilePhoto, usecase.FieldLivePhoto} {
			uploaded, src, err := openPart(c, field)
			if err != nil {
				h.respondError(c, &usecase.SaveError{Err: err})
				return
			}
			if src != nil {
				closers = append(closers, src)
			}
			switch field {
			case usecase.FieldProfilePhoto:
				req.Profile = uploaded
			case usecase.FieldLivePhoto:
				req.Live = uploaded
			}
		}
	}

	record, err := h.uc.Upload(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":          "Images uploaded successfully",
		"profilePhotoPath": record.ProfilePhotoPath,
		"livePhotoPath":    record.LivePhotoPath,
		"uploadId":         record.UploadID,
	})
}

// GetUpload handles GET /uploads/:id.
func (h *Handler) GetUpload(c *gin.Context) {
	record, err := h.uc.GetUpload(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Upload not found"})
			return
		}
		h.logger.Error("upload lookup failed", zap.Error(err), zap.String("upload_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load upload", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// UploadSummary handles GET /uploads/summary.
func (h *Handler) UploadSummary(c *gin.Context) {
	summary, err := h.uc.GetUploadSummary(c.Request.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrAuditDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Upload audit log is disabled"})
			return
		}
		h.logger.Error("upload summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load upload summary", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		missing *usecase.MissingFieldError
		invalid *usecase.InvalidTypeError
		saveErr *usecase.SaveError
	)
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"message": missing.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"message": invalid.Error()})
	case errors.As(err, &saveErr):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save images", "error": saveErr.Err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save images", "error": err.Error()})
	}
}

// openPart returns the named file part, or nil when the field is absent.
func openPart(c *gin.Context, field string) (*usecase.UploadedFile, multipart.File, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	src, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &usecase.UploadedFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     src,
	}, src, nil
}
