package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opensafely-core/reports/common/models"
)

// saveExisting persists edits to a report that was loaded from storage,
// applying the cache invalidation policy:
//
//   - resolution-affecting fields changed (repo, branch, file path, job
//     server URL): rotate the cache token AND clear cached upstream
//     responses for both the old and the new remote identity
//   - only presentation-affecting fields changed: rotate the token only
//   - nothing changed: leave the token alone, so downstream HTTP caching
//     keyed on it stays effective
//
// The HTTP-cache clear runs before the new values are persisted.
func (s *ReportService) saveExisting(ctx context.Context, old, updated *models.Report) error {
	resolutionChanged := old.Resolution() != updated.Resolution()
	presentationChanged := old.Presentation() != updated.Presentation()

	if err := s.validate(ctx, updated); err != nil {
		return err
	}

	switch {
	case resolutionChanged:
		s.log.Info("source repo field(s) updated; refreshing cache token and clearing requests cache",
			"report", old.Slug)
		if err := s.clearHTTPCache(ctx, old); err != nil {
			return err
		}
		if err := s.clearHTTPCache(ctx, updated); err != nil {
			return err
		}
		updated.CacheToken = uuid.New()
	case presentationChanged:
		s.log.Info("non-repo field(s) updated; refreshing cache token only",
			"report", old.Slug)
		updated.CacheToken = uuid.New()
	}

	return s.store.Update(ctx, updated)
}

// ForceUpdate is the administrative invalidation: it always rotates the
// token and always clears the upstream response cache for the record's
// remote identity, whether or not anything changed
func (s *ReportService) ForceUpdate(ctx context.Context, slug string) (*models.Report, error) {
	record, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if err := s.clearHTTPCache(ctx, record); err != nil {
		return nil, err
	}

	record.CacheToken = uuid.New()
	if err := s.store.SetCacheToken(ctx, record.ID, record.CacheToken); err != nil {
		return nil, err
	}

	s.log.Info("cache token refreshed and requests cache cleared", "report", slug)
	return record, nil
}

func (s *ReportService) clearHTTPCache(ctx context.Context, record *models.Report) error {
	if err := s.source(record).ClearCache(ctx); err != nil {
		return fmt.Errorf("clear requests cache for %s: %w", record.Slug, err)
	}
	return nil
}
