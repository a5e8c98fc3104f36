package api

import (
	"context"
	"fmt"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/metrics"
	"github.com/vantagehq/vantage/pkg/storage"
	"github.com/vantagehq/vantage/pkg/types"
)

// searchStrategy selects a repository search path from the request's mode
// and technique. It is a thin selector; it exists because the planned ai
// mode will need more than a method call.
type searchStrategy struct {
	repo storage.Repository
}

func (s *searchStrategy) Search(ctx context.Context, mode types.SearchMode, technique types.SearchTechnique, q types.SearchQuery) (*types.SearchResult, error) {
	switch mode {
	case types.SearchModeAI:
		return nil, apperr.NotImplemented("AI search is not implemented yet")
	case types.SearchModeStandard:
		// handled below
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown search mode: %s", mode))
	}

	timer := metrics.NewTimer()
	defer func() {
		metrics.SearchQueriesTotal.WithLabelValues(string(technique)).Inc()
	}()

	switch technique {
	case types.TechniqueOptimized:
		result, err := s.repo.SearchOptimized(ctx, q)
		timer.ObserveDuration(metrics.SearchQueryDuration.WithLabelValues(string(technique)))
		return result, err
	case types.TechniqueNative:
		result, err := s.repo.SearchNative(ctx, q)
		timer.ObserveDuration(metrics.SearchQueryDuration.WithLabelValues(string(technique)))
		return result, err
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown search technique: %s", technique))
	}
}
