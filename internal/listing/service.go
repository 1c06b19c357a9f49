package listing

import (
	"context"
	"strings"

	"certpipe/internal/constants"
	pkgerrors "certpipe/pkg/errors"
)

type Service interface {
	Store(ctx context.Context, listing *TradeListing) error
	ListByGroup(ctx context.Context, groupID string, limit int) ([]TradeListing, error)
	ListByCertificate(ctx context.Context, certificate string, limit int) ([]TradeListing, error)
	Stats(ctx context.Context) (*Stats, error)
	Purge(ctx context.Context, days int) (int64, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Store(ctx context.Context, listing *TradeListing) error {
	return s.repo.Insert(ctx, listing)
}

func (s *service) ListByGroup(ctx context.Context, groupID string, limit int) ([]TradeListing, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "group id is required")
	}
	return s.repo.QueryByGroup(ctx, groupID, clampLimit(limit))
}

func (s *service) ListByCertificate(ctx context.Context, certificate string, limit int) ([]TradeListing, error) {
	if strings.TrimSpace(certificate) == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "certificate is required")
	}
	return s.repo.QueryByCertificate(ctx, certificate, clampLimit(limit))
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *service) Purge(ctx context.Context, days int) (int64, error) {
	return s.repo.PurgeOlderThan(ctx, days)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		return constants.MaxLimit
	}
	return limit
}
