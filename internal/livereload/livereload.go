// Package livereload serves a build directory and tells connected browsers
// to reload when the build changes.
//
// HTML responses get a small script injected before </body> that opens a
// websocket to Path and reloads the page on any message.
package livereload

import (
	"bytes"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Path is the websocket endpoint browsers connect to.
const Path = "/__livereload"

// Script is injected into every served HTML page.
const Script = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss://":"ws://";` +
	`var ws=new WebSocket(p+location.host+"` + Path + `");` +
	`ws.onmessage=function(){location.reload();};` +
	`})();</script>`

// Hub tracks connected browsers.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a hub that logs through logger.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the
// browser goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Live reload upgrade failed", "error", err)
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Live reload client connected", "remote", r.RemoteAddr)

	// Browsers never send; ReadMessage returns once the socket closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Reload tells every connected browser to reload.
func (h *Hub) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("reload")); err != nil {
			h.logger.Debug("Dropping live reload client", "error", err)
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
	h.logger.Info("Reloaded browsers", "clients", len(h.conns))
}

// Handler serves dir, injecting Script into HTML pages, and routes Path to hub.
func Handler(dir string, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, hub)
	mux.Handle("/", &fileServer{dir: dir, files: http.FileServer(http.Dir(dir))})
	return mux
}

type fileServer struct {
	dir   string
	files http.Handler
}

func (s *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	if !strings.HasSuffix(name, ".html") {
		s.files.ServeHTTP(w, r)
		return
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		s.files.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(Inject(data))
}

// Inject inserts Script before the last </body>, or appends it when the
// page has no body close tag.
func Inject(html []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, html...), Script...)
	}
	out := make([]byte, 0, len(html)+len(Script))
	out = append(out, html[:idx]...)
	out = append(out, Script...)
	out = append(out, html[idx:]...)
	return out
}
