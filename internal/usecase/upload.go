package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/facerecog/internal/imagetype"
	"github.com/example/facerecog/internal/logging"
	"github.com/example/facerecog/internal/repository"
	"github.com/example/facerecog/internal/storage"
)

// UploadRepository defines the persistence operations needed by the use case.
type UploadRepository interface {
	SaveLog(ctx context.Context, log *repository.UploadLog) error
	FindByUploadID(ctx context.Context, uploadID string) (*repository.UploadLog, error)
	AggregateUploads(ctx context.Context) (*repository.UploadAggregation, error)
}

// ImageStore persists image bytes for a slot.
type ImageStore interface {
	EnsureDirectories() error
	Save(ctx context.Context, slot storage.Slot, filename string, src io.Reader) (*storage.StoredImage, error)
}

// UploadedFile is one file part taken from the incoming request.
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// UploadRequest carries both image parts. A nil file means the field was absent.
type UploadRequest struct {
	RequestID string
	Profile   *UploadedFile
	Live      *UploadedFile
}

// UploadRecord describes an accepted pair of images.
type UploadRecord struct {
	UploadID           string    `json:"uploadId"`
	ProfilePhotoPath   string    `json:"profilePhotoPath"`
	LivePhotoPath      string    `json:"livePhotoPath"`
	ProfileContentType string    `json:"profileContentType"`
	LiveContentType    string    `json:"liveContentType"`
	ProfileSize        int64     `json:"profileSize"`
	LiveSize           int64     `json:"liveSize"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Option customizes an UploadUseCase.
type Option func(*UploadUseCase)

// WithContentSniffing makes uploads pass a byte-level type check on top of
// the declared Content-Type.
func WithContentSniffing(enabled bool) Option {
	return func(uc *UploadUseCase) {
		uc.sniffContent = enabled
	}
}

// UploadUseCase validates and stores profile/live image pairs.
type UploadUseCase struct {
	store          ImageStore
	repo           UploadRepository
	cache          Cache
	logger         *zap.Logger
	sniffContent   bool
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewUploadUseCase constructs a new use case instance. repo and cache may be
// nil, in which case accepted uploads are only written to disk.
func NewUploadUseCase(store ImageStore, repo UploadRepository, cache Cache, logger *zap.Logger, opts ...Option) *UploadUseCase {
	uc := &UploadUseCase{
		store:          store,
		repo:           repo,
		cache:          cache,
		logger:         logger.Named("upload_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Upload validates both files and writes them to their slot directories.
// Validation of both files completes before anything is written. If the live
// photo fails to save, the already written profile photo is left in place.
func (uc *UploadUseCase) Upload(ctx context.Context, req UploadRequest) (*UploadRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.upload", req.RequestID)

	if err := uc.store.EnsureDirectories(); err != nil {
		opLogger.Error("failed to prepare storage directories", zap.Error(err))
		return nil, &SaveError{Err: err}
	}

	if req.Profile == nil || req.Live == nil {
		return nil, &MissingFieldError{}
	}

	profile, err := uc.validate(FieldProfilePhoto, req.Profile)
	if err != nil {
		return nil, err
	}
	live, err := uc.validate(FieldLivePhoto, req.Live)
	if err != nil {
		return nil, err
	}

	profileImage, err := uc.store.Save(ctx, storage.SlotProfile, req.Profile.Filename, profile)
	if err != nil {
		opLogger.Error("failed to save profile photo", zap.Error(err))
		return nil, &SaveError{Err: err}
	}
	liveImage, err := uc.store.Save(ctx, storage.SlotLive, req.Live.Filename, live)
	if err != nil {
		opLogger.Error("failed to save live photo", zap.Error(err), zap.String("profile_path", profileImage.Path))
		return nil, &SaveError{Err: err}
	}

	record := &UploadRecord{
		UploadID:           uuid.NewString(),
		ProfilePhotoPath:   profileImage.Path,
		LivePhotoPath:      liveImage.Path,
		ProfileContentType: imagetype.MediaType(req.Profile.ContentType),
		LiveContentType:    imagetype.MediaType(req.Live.ContentType),
		ProfileSize:        profileImage.Size,
		LiveSize:           liveImage.Size,
		CreatedAt:          time.Now().UTC(),
	}

	opLogger.Info("images uploaded",
		zap.String("upload_id", record.UploadID),
		zap.String("profile_path", record.ProfilePhotoPath),
		zap.String("live_path", record.LivePhotoPath))

	uc.recordUpload(ctx, req.RequestID, record)

	return record, nil
}

// validate checks the declared type and, when sniffing is enabled, the
// leading bytes. It returns the reader to copy the file from.
func (uc *UploadUseCase) validate(field string, file *UploadedFile) (io.Reader, error) {
	if !imagetype.IsAllowedMIME(file.ContentType) {
		return nil, &InvalidTypeError{Field: field, ContentType: file.ContentType}
	}
	if !uc.sniffContent {
		return file.Content, nil
	}

	buffered := bufio.NewReaderSize(file.Content, imagetype.SniffLength)
	head, err := buffered.Peek(imagetype.SniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, &SaveError{Err: err}
	}
	detected, ok := imagetype.Detect(head)
	if !ok {
		return nil, &InvalidTypeError{Field: field, ContentType: detected}
	}
	return buffered, nil
}

// recordUpload caches and persists the record. The images are already on
// disk, so failures are logged and swallowed.
func (uc *UploadUseCase) recordUpload(ctx context.Context, requestID string, record *UploadRecord) {
	opLogger := logging.WithOperation(uc.logger, "usecase.record_upload", requestID)

	if uc.cache != nil {
		serialized, err := json.Marshal(record)
		if err != nil {
			opLogger.Warn("failed to serialize upload record", zap.Error(err))
		} else if err := uc.withRedisRetry(ctx, requestID, "cache.set.upload", func() error {
			return uc.cache.Set(ctx, uploadCacheKey(record.UploadID), string(serialized), uploadCacheTTL)
		}); err != nil {
			opLogger.Warn("failed to cache upload record", zap.Error(err))
		}
	}

	if uc.repo != nil {
		log := &repository.UploadLog{
			UploadID:           record.UploadID,
			RequestID:          requestID,
			ProfilePath:        record.ProfilePhotoPath,
			LivePath:           record.LivePhotoPath,
			ProfileContentType: record.ProfileContentType,
			LiveContentType:    record.LiveContentType,
			ProfileSize:        record.ProfileSize,
			LiveSize:           record.LiveSize,
			CreatedAt:          record.CreatedAt,
		}
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Warn("failed to persist upload log", zap.Error(err))
		}
	}
}

// GetUpload retrieves a cached upload record or loads it from persistence.
func (uc *UploadUseCase) GetUpload(ctx context.Context, uploadID string) (*UploadRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_upload", "")

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, "", "cache.get.upload", uploadCacheKey(uploadID))
		if err == nil {
			var record UploadRecord
			if err := json.Unmarshal([]byte(cached), &record); err != nil {
				opLogger.Warn("failed to decode cached upload record", zap.Error(err))
			} else {
				return &record, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrUploadNotFound
	}

	log, err := uc.repo.FindByUploadID(ctx, uploadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}

	return &UploadRecord{
		UploadID:           log.UploadID,
		ProfilePhotoPath:   log.ProfilePath,
		LivePhotoPath:      log.LivePath,
		ProfileContentType: log.ProfileContentType,
		LiveContentType:    log.LiveContentType,
		ProfileSize:        log.ProfileSize,
		LiveSize:           log.LiveSize,
		CreatedAt:          log.CreatedAt,
	}, nil
}

func (uc *UploadUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *UploadUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
