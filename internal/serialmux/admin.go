package serialmux

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/passenger.counter/internal/httputil"
)

// tailKeepalive is how often an idle event stream gets a comment line.
const tailKeepalive = 15 * time.Second

var consolePage = template.Must(template.New("console").Parse(`<!DOCTYPE html>
<html>
<head><title>Counter display console</title></head>
<body>
<h1>Counter display console</h1>
<p>Lines sent here go to the display verbatim, e.g. <code>{{.Example}}</code>.</p>
<form method="post" action="/debug/serial-send">
  <input name="command" autofocus>
  <button type="submit">Send</button>
</form>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
new EventSource("/debug/serial-tail").onmessage = (e) => {
  tail.textContent = e.data + "\n" + tail.textContent;
};
</script>
</body>
</html>
`))

// AttachAdminRoutes adds the display console to the tsweb debug pages:
// /debug/serial (page), /debug/serial-send (POST a line) and
// /debug/serial-tail (server-sent events of incoming lines).
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("serial", "serial display console", s.serveConsole)
	debug.HandleSilentFunc("serial-send", s.serveSend)
	debug.HandleSilentFunc("serial-tail", s.serveTail)
}

func (s *SerialMux[T]) serveConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consolePage.Execute(w, map[string]string{"Example": FormatCount("door-1", 0, 0)}); err != nil {
		logf("render console: %v", err)
	}
}

func (s *SerialMux[T]) serveSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	line := strings.TrimSpace(r.FormValue("command"))
	if line == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.SendCommand(line); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("write to display: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": line})
}

func (s *SerialMux[T]) serveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	keepalive := time.NewTicker(tailKeepalive)
	defer keepalive.Stop()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
