package usecase

import (
	"context"
	"time"
)

// UploadSummary represents aggregated upload insights.
type UploadSummary struct {
	TotalUploads       int64      `json:"totalUploads"`
	TotalBytes         int64      `json:"totalBytes"`
	AverageUploadBytes float64    `json:"averageUploadBytes"`
	LastUploadAt       *time.Time `json:"lastUploadAt,omitempty"`
}

// GetUploadSummary aggregates upload metrics from persisted logs.
func (uc *UploadUseCase) GetUploadSummary(ctx context.Context) (*UploadSummary, error) {
	if uc.repo == nil {
		return nil, ErrAuditDisabled
	}

	aggregation, err := uc.repo.AggregateUploads(ctx)
	if err != nil {
		return nil, err
	}

	summary := &UploadSummary{
		TotalUploads: aggregation.TotalCount,
		TotalBytes:   aggregation.TotalBytes,
		LastUploadAt: aggregation.LastUploadAt,
	}
	if aggregation.TotalCount > 0 {
		summary.AverageUploadBytes = float64(aggregation.TotalBytes) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
