package notification

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/common/validation"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64, limit int64) ([]View, error) {
	v := validation.NewValidator()
	v.Field("limit", limit).MinInt(0, internal.ErrCodeInvalidPagination).MaxInt(MaxLimit, internal.ErrCodeInvalidPagination)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultLimit
	}

	rows, err := s.repo.ListByUser(ctx, userID, int(limit))
	if err != nil {
		s.logger.Error("failed to list notifications", "error", err, "user_id", userID)
		return nil, internal.NewStoreError("failed to list notifications", err)
	}

	views := make([]View, 0, len(rows))
	for i := range rows {
		views = append(views, NewView(&rows[i]))
	}
	return views, nil
}
