package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/history"
	"github.com/GriffinCanCode/vets/internal/trace"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error", "code"} with a status derived from its code.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	msg := err.Error()
	if appErr, ok := apperrors.As(err); ok {
		msg = appErr.Message
	}
	writeJSON(w, httpStatus(code), map[string]string{"error": msg, "code": code.String()})
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodePipelineBusy:
		return http.StatusConflict
	case apperrors.CodeNoWindowSelected, apperrors.CodeInvalidArgument, apperrors.CodeEmptyCrop:
		return http.StatusBadRequest
	case apperrors.CodeWindowNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnavailable, apperrors.CodeCancelled:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.opts.Windows == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "window enumeration is not available"))
		return
	}
	titles, err := s.opts.Windows.Windows(r.Context())
	if err != nil {
		trace.Logger(r.Context()).Warn("listing windows failed", "error", err)
		writeError(w, err)
		return
	}
	if titles == nil {
		titles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": titles})
}

func (s *Server) handleCapture(preview bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := s.controller()
		if c == nil {
			writeError(w, apperrors.New(apperrors.CodeUnavailable, "pipeline is not running"))
			return
		}

		var msg CaptureMessage
		if err := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBody)).Decode(&msg); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed capture request"))
			return
		}

		runID, err := c.StartCapture(r.Context(), s.request(msg, preview))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, AcceptedMessage{Type: TypeAccepted, RunID: runID})
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	c := s.controller()
	if c == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "pipeline is not running"))
		return
	}
	if err := c.Cancel(r.Context()); err != nil {
		if apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "no capture in progress", "code": apperrors.CodeInvalidArgument.String()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := s.controller()
	if c == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "pipeline is not running"))
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "history is disabled"))
		return
	}

	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v))
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	entries, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		trace.Logger(r.Context()).Error("reading history failed", "error", err)
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Presentation)
}
