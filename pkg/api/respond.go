package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/types"
)

// Meta carries the timing fields of a success envelope
type Meta struct {
	QueryTimeMs int64 `json:"queryTimeMs"`
	TotalTimeMs int64 `json:"totalTimeMs"`
}

// searchResponse is the search success envelope
type searchResponse struct {
	Status     string           `json:"status"`
	Data       []types.Business `json:"data"`
	Pagination types.Pagination `json:"pagination"`
	Meta       Meta             `json:"meta"`
}

// dataResponse is the generic success envelope
type dataResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Meta   *Meta  `json:"meta,omitempty"`
}

// errorResponse is the error envelope
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response", err)
	}
}

// writeError maps an error to the HTTP error envelope. Operational errors
// surface their message; anything else is masked.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := "Internal server error"

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Operational {
		message = appErr.Message
	} else {
		log.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("Unexpected error")
	}

	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
