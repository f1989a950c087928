package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/passenger.counter/internal/db"
	"github.com/banshee-data/passenger.counter/internal/httputil"
	"github.com/banshee-data/passenger.counter/internal/report"
)

const defaultInterval = 15 * time.Minute

// parseQuery reads stream, session, since, until and limit. Times are
// RFC 3339 or unix seconds.
func parseQuery(v url.Values) (db.CrossingQuery, error) {
	q := db.CrossingQuery{
		Stream:    v.Get("stream"),
		SessionID: v.Get("session"),
	}
	var err error
	if q.Since, err = parseTime(v.Get("since")); err != nil {
		return q, fmt.Errorf("invalid 'since': %w", err)
	}
	if q.Until, err = parseTime(v.Get("until")); err != nil {
		return q, fmt.Errorf("invalid 'until': %w", err)
	}
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 10000 {
			return q, fmt.Errorf("invalid 'limit' parameter")
		}
		q.Limit = n
	}
	return q, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(secs*1e9)), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInterval(v url.Values) (time.Duration, error) {
	s := v.Get("interval")
	if s == "" {
		return defaultInterval, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < time.Minute || d > 24*time.Hour {
		return 0, fmt.Errorf("invalid 'interval': want a duration between 1m and 24h")
	}
	return d, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.db.ListSessions(r.Context(), q.Stream, q.Limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listCrossings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	crossings, err := s.db.ListCrossings(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list crossings: %v", err))
		return
	}
	if crossings == nil {
		crossings = []db.Crossing{}
	}
	httputil.WriteJSONOK(w, crossings)
}

// historyRequest parses the shared query of the bucketed endpoints and
// loads the buckets.
func (s *Server) historyRequest(w http.ResponseWriter, r *http.Request) (db.CrossingQuery, time.Duration, []db.CountBucket, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return db.CrossingQuery{}, 0, nil, false
	}
	if !s.requireDB(w) {
		return db.CrossingQuery{}, 0, nil, false
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return q, 0, nil, false
	}
	interval, err := parseInterval(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return q, 0, nil, false
	}
	buckets, err := s.db.CountsByInterval(r.Context(), q, interval)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load counts: %v", err))
		return q, 0, nil, false
	}
	return q, interval, buckets, true
}

func (s *Server) showCounts(w http.ResponseWriter, r *http.Request) {
	q, interval, buckets, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	totals, err := s.db.Totals(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load totals: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"interval": interval.String(),
		"totals":   totals,
		"buckets":  report.Fill(buckets, interval),
	})
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	q, interval, buckets, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, report.Summarize(q.Stream, buckets, interval))
}

func chartTitle(q db.CrossingQuery) string {
	if q.Stream == "" {
		return "Passenger flow"
	}
	return "Passenger flow: " + q.Stream
}

func (s *Server) showChartPNG(w http.ResponseWriter, r *http.Request) {
	q, interval, buckets, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	png, err := report.RenderPNG(chartTitle(q), buckets, interval)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) showReportPage(w http.ResponseWriter, r *http.Request) {
	q, interval, buckets, ok := s.historyRequest(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	summary := report.Summarize(q.Stream, buckets, interval)
	if err := report.RenderHTML(&buf, chartTitle(q), summary, buckets, interval); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render report: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
