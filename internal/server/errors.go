package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/parser"
	"github.com/Veraticus/tally/internal/validate"
)

// retryAfterSeconds is advertised when an import times out.
const retryAfterSeconds = 5

type errorBody struct {
	Details   any    `json:"details,omitempty"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError maps err onto a status code and a JSON body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	body.RequestID = RID(r.Context())

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		common.LogError(r.Context(), err, "request failed", common.Fields{"path": r.URL.Path, "status": status})
	} else {
		common.LogDebug(r.Context(), "request rejected", common.Fields{"path": r.URL.Path, "status": status, "error": err.Error()})
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		parseErr      *parser.ParseError
		validationErr *validate.ValidationError
		timeoutErr    *ingest.TransactionTimeoutError
		userErr       *common.UserError
	)

	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, errorBody{
			Code:  "parse_error",
			Error: parseErr.Error(),
			Details: map[string]any{
				"file":   parseErr.File,
				"line":   parseErr.Line,
				"column": parseErr.Column,
			},
		}
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, errorBody{
			Code:  "validation_error",
			Error: validationErr.Error(),
			Details: map[string]any{
				"issues":   validationErr.Issues,
				"warnings": validationErr.Warnings,
			},
		}
	case errors.As(err, &timeoutErr):
		return http.StatusServiceUnavailable, errorBody{
			Code:  "transaction_timeout",
			Error: "import timed out and was rolled back; retry the request",
		}
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Error: err.Error()}
	case errors.Is(err, common.ErrBatchNotReady), errors.Is(err, common.ErrDuplicateEntry):
		return http.StatusConflict, errorBody{Code: "conflict", Error: err.Error()}
	case errors.Is(err, common.ErrEmptyImport):
		return http.StatusBadRequest, errorBody{Code: "empty_import", Error: err.Error()}
	case errors.As(err, &userErr):
		return http.StatusBadRequest, errorBody{Code: "bad_request", Error: userErr.UserMessage}
	case errors.Is(err, common.ErrMissingConfig):
		return http.StatusNotImplemented, errorBody{Code: "not_configured", Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal server error"}
	}
}

func badRequest(msg string) error {
	return common.NewUserError(msg, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any, limit int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
