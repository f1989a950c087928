// Package api serves live counts, calibration parameters and stored
// crossing history over HTTP.
package api

import (
	"net/http"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/db"
	"github.com/banshee-data/passenger.counter/internal/httputil"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

// Server exposes the API. DB may be nil, in which case the history
// endpoints answer 503.
type Server struct {
	streams *stream.Manager
	params  *config.Live
	db      *db.DB
}

// NewServer creates a server over the running streams.
func NewServer(streams *stream.Manager, params *config.Live, database *db.DB) *Server {
	return &Server{streams: streams, params: params, db: database}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/streams", s.listStreams)
	mux.HandleFunc("/api/streams/{name}", s.showStream)
	mux.HandleFunc("/api/streams/{name}/reset", s.resetStream)
	mux.HandleFunc("/api/reset", s.resetAll)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/crossings", s.listCrossings)
	mux.HandleFunc("/api/counts", s.showCounts)
	mux.HandleFunc("/api/report/summary", s.showSummary)
	mux.HandleFunc("/api/report/chart.png", s.showChartPNG)
	mux.HandleFunc("/report", s.showReportPage)
	return mux
}

// Handler wraps ServeMux in request logging.
func (s *Server) Handler() http.Handler {
	return httputil.LoggingMiddleware(s.ServeMux())
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history is disabled (no database)")
		return false
	}
	return true
}
