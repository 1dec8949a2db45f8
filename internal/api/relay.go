package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/privacylion/relay-operator/internal/history"
	"github.com/privacylion/relay-operator/internal/relay"
)

// handleStartRelay starts the relay. A relay that is already running is
// not an error; the response carries the current status.
func (s *Server) handleStartRelay(w http.ResponseWriter, r *http.Request) {
	st, err := s.relay.Start(r.Context())
	if err != nil {
		s.logger.Warn("relay start failed", "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
		writeError(w, http.StatusBadGateway, ErrCodeRelayFailed, st.Message)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStopRelay stops the relay. Stopping a stopped relay succeeds.
func (s *Server) handleStopRelay(w http.ResponseWriter, r *http.Request) {
	st, err := s.relay.Stop(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeRelayFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.relay.Status(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetRelayConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Config())
}

// handleUpdateRelayConfig replaces the whole relay config. Omitted fields
// are zeroed, not merged, so clients send the full object they read.
func (s *Server) handleUpdateRelayConfig(w http.ResponseWriter, r *http.Request) {
	var cfg relay.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.relay.UpdateConfig(r.Context(), cfg); err != nil {
		if errors.Is(err, relay.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.relay.Config())
}

// handleOpenRelayURL opens the relay URL on the machine running the
// operator and returns it.
func (s *Server) handleOpenRelayURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.relay.OpenRelayURL(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleRelayHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.HealthCheck(r.Context()))
}

// handleListEvents returns recorded relay events, newest first.
//
// Query parameters: type, since (RFC 3339), limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{Type: q.Get("type")}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	events, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing relay events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
