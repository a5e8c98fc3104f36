package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Ingester triggers an ingestion run; satisfied by *etl.Orchestrator
type Ingester interface {
	RunAndWait(ctx context.Context, filePath string) (types.IngestResult, error)
}

// healthResponse is the health endpoint payload
type healthResponse struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.started).Seconds(),
		Timestamp: time.Now(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, mode, technique, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.strategy.Search(r.Context(), mode, technique, query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Status:     "success",
		Data:       result.Data,
		Pagination: result.Pagination,
		Meta: Meta{
			QueryTimeMs: result.QueryTimeMs,
			TotalTimeMs: totalTimeMs(r.Context()),
		},
	})
}

func (s *Server) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	abn := chi.URLParam(r, "abn")

	business, queryTime, err := s.repo.FindByABN(r.Context(), abn)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{
		Status: "success",
		Data:   business,
		Meta: &Meta{
			QueryTimeMs: queryTime,
			TotalTimeMs: totalTimeMs(r.Context()),
		},
	})
}

// ingestRequest is the ingest endpoint body
type ingestRequest struct {
	FilePath string `json:"filePath"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.Validation("invalid request body"))
		return
	}
	if req.FilePath == "" {
		writeError(w, r, apperr.Validation("filePath is required"))
		return
	}

	result, err := s.ingester.RunAndWait(r.Context(), req.FilePath)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{
		Status: "success",
		Data:   result,
		Meta:   &Meta{TotalTimeMs: totalTimeMs(r.Context())},
	})
}

// parseSearchRequest normalizes the search query parameters: page clamps to
// >= 1, limit to [1, 100], absent strings stay empty, mode and technique
// fall back to their defaults
func parseSearchRequest(r *http.Request) (types.SearchQuery, types.SearchMode, types.SearchTechnique, error) {
	params := r.URL.Query()

	page, err := parsePositiveInt(params.Get("page"), defaultPage)
	if err != nil {
		return types.SearchQuery{}, "", "", apperr.Validation(fmt.Sprintf("invalid page: %s", params.Get("page")))
	}

	limit, err := parsePositiveInt(params.Get("limit"), defaultLimit)
	if err != nil {
		return types.SearchQuery{}, "", "", apperr.Validation(fmt.Sprintf("invalid limit: %s", params.Get("limit")))
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	mode := types.SearchMode(params.Get("mode"))
	if mode == "" {
		mode = types.SearchModeStandard
	}
	technique := types.SearchTechnique(params.Get("technique"))
	if technique == "" {
		technique = types.TechniqueNative
	}

	query := types.SearchQuery{
		Term:       params.Get("q"),
		State:      params.Get("state"),
		Postcode:   params.Get("postcode"),
		EntityType: params.Get("entityType"),
		ABNStatus:  params.Get("abnStatus"),
		Page:       page,
		Limit:      limit,
	}
	return query, mode, technique, nil
}

// parsePositiveInt parses a query integer, defaulting when absent and
// clamping values below 1
func parsePositiveInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 1, nil
	}
	return n, nil
}
