package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/stats"
)

type recordRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type listResponse struct {
	Sessions []records.Record `json:"sessions"`
}

type statsResponse struct {
	Summary stats.Summary      `json:"summary"`
	Buckets stats.ChartBuckets `json:"buckets"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_to", err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	recs, err := s.records.List(r.Context(), userFrom(r.Context()), from, to)
	if err != nil {
		s.log.WithError(err).Error("list focus records failed")
		respondError(w, http.StatusInternalServerError, "store_error", "could not list sessions")
		return
	}
	out := filter.Apply(recs)
	respondJSON(w, http.StatusOK, listResponse{Sessions: out})
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec, err := s.records.AddManual(r.Context(), userFrom(r.Context()), req.StartTime, req.EndTime)
	if err != nil {
		s.respondRecordError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec, err := s.records.Edit(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), req.StartTime, req.EndTime)
	if err != nil {
		s.respondRecordError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.respondRecordError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	loc := time.UTC
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_tz", err.Error())
			return
		}
		loc = l
	}
	now := s.clock.Now().In(loc)

	recs, err := s.records.List(r.Context(), userFrom(r.Context()), time.Time{}, time.Time{})
	if err != nil {
		s.log.WithError(err).Error("list focus records failed")
		respondError(w, http.StatusInternalServerError, "store_error", "could not load sessions")
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{
		Summary: stats.Summarize(recs),
		Buckets: stats.Buckets(recs, now),
	})
}

func (s *Server) respondRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, records.ErrNotEditable):
		respondError(w, http.StatusForbidden, "not_editable", err.Error())
	case errors.Is(err, records.ErrInvalidDuration):
		respondError(w, http.StatusUnprocessableEntity, "invalid_duration", err.Error())
	default:
		s.log.WithError(err).Error("focus record operation failed")
		respondError(w, http.StatusInternalServerError, "store_error", "internal error")
	}
}

func parseTimeParam(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 time: %w", err)
	}
	return t, nil
}

func parseFilter(r *http.Request) (records.Filter, error) {
	q := r.URL.Query()
	manual, err := records.ParseManualFilter(q.Get("manual"))
	if err != nil {
		return records.Filter{}, err
	}
	f := records.Filter{Manual: manual}
	if f.MinDuration, err = hoursParam(q.Get("min_hours")); err != nil {
		return records.Filter{}, err
	}
	if f.MaxDuration, err = hoursParam(q.Get("max_hours")); err != nil {
		return records.Filter{}, err
	}
	return f, nil
}

func hoursParam(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	h, err := strconv.ParseFloat(v, 64)
	if err != nil || h < 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, fmt.Errorf("invalid hours %q", v)
	}
	return time.Duration(h * float64(time.Hour)), nil
}
