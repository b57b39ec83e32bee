package handoff

import (
	"context"
	"fmt"

	"github.com/andresmejia3/shadecheck/internal/capture"
	"github.com/andresmejia3/shadecheck/internal/logger"
	"github.com/andresmejia3/shadecheck/internal/types"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

// Recorder persists capture records. *store.Store implements it.
type Recorder interface {
	InsertCapture(ctx context.Context, c types.CaptureRecord) error
}

// StoreSink records every hand-off together with the reading that allowed it.
type StoreSink struct {
	rec Recorder
}

func NewStoreSink(rec Recorder) *StoreSink {
	return &StoreSink{rec: rec}
}

func (s *StoreSink) Handoff(ctx context.Context, desc types.ImageDescriptor) error {
	data, err := imageBytes(ctx, desc)
	if err != nil {
		return err
	}

	record := types.CaptureRecord{
		ID:        utils.ContentID(data),
		Location:  desc.Location,
		FileName:  desc.FileName,
		MimeType:  desc.MimeType,
		SourceTag: desc.SourceTag,
		Width:     desc.Width,
		Height:    desc.Height,
	}
	if sub, ok := capture.SubmissionFromContext(ctx); ok {
		record.SessionID = sub.SessionID
		record.Readiness = sub.Quality.Message
		if sub.Quality.Debug != nil {
			record.Debug = *sub.Quality.Debug
		}
	}

	if err := s.rec.InsertCapture(ctx, record); err != nil {
		logger.Error("failed to record capture", logger.LoggerOptions{Key: "error", Data: err})
		return fmt.Errorf("failed to record capture: %w", err)
	}
	logger.Info("capture recorded", logger.LoggerOptions{Key: "id", Data: record.ID})
	return nil
}
