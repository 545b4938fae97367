package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/facerecog/internal/logging"
)

// ErrNotFound is returned when no upload log matches the lookup.
var ErrNotFound = errors.New("upload log not found")

// UploadLog represents a persisted pair of stored images.
type UploadLog struct {
	ID                 uint      `gorm:"primaryKey"`
	UploadID           string    `gorm:"column:upload_id;uniqueIndex;size:64"`
	RequestID          string    `gorm:"column:request_id;size:64"`
	ProfilePath        string    `gorm:"column:profile_path;type:text"`
	LivePath           string    `gorm:"column:live_path;type:text"`
	ProfileContentType string    `gorm:"column:profile_content_type;size:64"`
	LiveContentType    string    `gorm:"column:live_content_type;size:64"`
	ProfileSize        int64     `gorm:"column:profile_size"`
	LiveSize           int64     `gorm:"column:live_size"`
	CreatedAt          time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (UploadLog) TableName() string {
	return "upload_logs"
}

// UploadAggregation is the raw aggregate computed over all upload logs.
type UploadAggregation struct {
	TotalCount   int64
	TotalBytes   int64
	LastUploadAt *time.Time
}

// UploadRepository provides persistence APIs for upload logs.
type UploadRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewUploadRepository creates a new repository instance.
func NewUploadRepository(db *gorm.DB, logger *zap.Logger) *UploadRepository {
	return &UploadRepository{
		db:             db,
		logger:         logger.Named("upload_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *UploadRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&UploadLog{})
}

// SaveLog persists an upload log entry.
func (r *UploadRepository) SaveLog(ctx context.Context, log *UploadLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByUploadID retrieves the log for an upload id.
func (r *UploadRepository) FindByUploadID(ctx context.Context, uploadID string) (*UploadLog, error) {
	var log UploadLog
	err := r.executeWithRetry(ctx, "repository.find_by_upload_id", "", func() error {
		return r.db.WithContext(ctx).First(&log, "upload_id = ?", uploadID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateUploads computes totals across every stored upload.
func (r *UploadRepository) AggregateUploads(ctx context.Context) (*UploadAggregation, error) {
	var row struct {
		TotalCount   int64
		TotalBytes   int64
		LastUploadAt *time.Time
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_uploads", "", func() error {
		return r.db.WithContext(ctx).
			Model(&UploadLog{}).
			Select("COUNT(*) AS total_count, COALESCE(SUM(profile_size + live_size), 0) AS total_bytes, MAX(created_at) AS last_upload_at").
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &UploadAggregation{
		TotalCount:   row.TotalCount,
		TotalBytes:   row.TotalBytes,
		LastUploadAt: row.LastUploadAt,
	}, nil
}

func (r *UploadRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !logging.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
