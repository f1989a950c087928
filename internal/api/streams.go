package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/httputil"
	"github.com/banshee-data/passenger.counter/internal/stream"
	"github.com/banshee-data/passenger.counter/internal/version"
)

// StreamStatus is the list view of one stream.
type StreamStatus struct {
	Name      string            `json:"name"`
	SessionID string            `json:"session_id,omitempty"`
	Running   bool              `json:"running"`
	Frame     int64             `json:"frame"`
	FPS       float64           `json:"fps"`
	Tracks    int               `json:"tracks"`
	Counters  counting.Counters `json:"counters"`
	Updated   *time.Time        `json:"updated,omitempty"`
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	out := []StreamStatus{}
	for _, name := range s.streams.Names() {
		runner, ok := s.streams.Get(name)
		if !ok {
			continue
		}
		snap := runner.Snapshot()
		st := StreamStatus{
			Name:      name,
			SessionID: runner.SessionID(),
			Running:   runner.Running(),
			Frame:     snap.Frame,
			FPS:       snap.FPS,
			Tracks:    len(snap.Tracks),
			Counters:  snap.Counters,
		}
		if !snap.Timestamp.IsZero() {
			ts := snap.Timestamp
			st.Updated = &ts
		}
		out = append(out, st)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := r.PathValue("name")
	snap, ok := s.streams.Snapshot(name)
	if !ok {
		httputil.NotFound(w, "unknown stream: "+name)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) resetStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	name := r.PathValue("name")
	if err := s.streams.Reset(name); err != nil {
		switch {
		case errors.Is(err, stream.ErrUnknownStream):
			httputil.NotFound(w, "unknown stream: "+name)
		case errors.Is(err, stream.ErrStreamStopped):
			httputil.Conflict(w, err.Error())
		default:
			httputil.InternalServerError(w, err.Error())
		}
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested", "stream": name})
}

func (s *Server) resetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	names := s.streams.ResetAll()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"status": "reset requested", "streams": names})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPatch:
		raw, err := httputil.ReadJSON(r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		// PUT installs the document as the whole config and omitted keys
		// fall back to defaults. PATCH merges it over the current one.
		apply := s.params.ApplyJSON
		if r.Method == http.MethodPut {
			apply = s.params.ReplaceJSON
		}
		if err := apply(raw); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"version": s.params.Version(),
		"params":  s.params.Get(),
	})
}
