// Package server exposes a running engine session over HTTP: a minimal
// browser console at / and a WebSocket at /ws. Client text messages are
// dispatched as engine commands; filtered engine output is broadcast to
// every connected client.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"enginebridge/internal/session"
)

// Server bridges one engine session to WebSocket clients.
type Server struct {
	session *session.Session
	hub     *Hub
}

// New creates a server for the given session. The caller wires
// EngineLine and DiagnosticLine in as the session's consumers.
func New(sess *session.Session) *Server {
	return &Server{
		session: sess,
		hub:     NewHub(),
	}
}

// EngineLine is the fresh-line consumer: it broadcasts filtered engine
// output to all clients.
func (s *Server) EngineLine(line string) {
	s.hub.Broadcast(Line{Stream: "engine", Line: line})
}

// DiagnosticLine broadcasts engine stderr output to all clients.
func (s *Server) DiagnosticLine(line string) {
	s.hub.Broadcast(Line{Stream: "stderr", Line: line})
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run serves on localhost at the given port until the listener fails.
func (s *Server) Run(port string) error {
	addr := fmt.Sprintf("localhost:%s", port)
	slog.Info("Engine console listening", "addr", addr)
	return http.ListenAndServe(addr, s.Routes())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Same-host origins only, to prevent cross-site WebSocket
		// hijacking. Requests without an Origin header are allowed
		// (native clients).
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		slog.Warn("Rejected WebSocket connection from unauthorized origin", "origin", origin, "host", r.Host)
		return false
	},
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	client := &Client{
		ID:    fmt.Sprintf("console-%d", time.Now().UnixNano()),
		Lines: make(chan Line, 100),
		Done:  make(chan struct{}),
	}

	s.hub.RegisterClient(client)
	defer s.hub.UnregisterClient(client.ID)
	defer close(client.Done)

	// Writer: one goroutine owns the connection's write side.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case line := <-client.Lines:
				if err := conn.WriteJSON(line); err != nil {
					slog.Error("Failed to write WebSocket message", "error", err)
					return
				}
			case <-client.Done:
				return
			}
		}
	}()

	// Reader: each text message is one engine command.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}
		s.session.Send(string(data))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(consoleHTML))
}

const consoleHTML = `<!DOCTYPE html>
<html>
<head><title>enginebridge console</title>
<style>
body { font-family: monospace; margin: 1em; }
#out { white-space: pre-wrap; border: 1px solid #999; padding: 0.5em; height: 70vh; overflow-y: scroll; }
.stderr { color: #a00; }
input { width: 100%; font-family: monospace; }
</style>
</head>
<body>
<div id="out"></div>
<input id="cmd" placeholder="UCI command, e.g. go depth 20" autofocus>
<script>
const out = document.getElementById("out");
const cmd = document.getElementById("cmd");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (e) => {
  const msg = JSON.parse(e.data);
  const div = document.createElement("div");
  div.textContent = msg.line;
  if (msg.stream === "stderr") div.className = "stderr";
  out.appendChild(div);
  out.scrollTop = out.scrollHeight;
};
cmd.addEventListener("keydown", (e) => {
  if (e.key === "Enter" && cmd.value.trim() !== "") {
    ws.send(cmd.value);
    cmd.value = "";
  }
});
</script>
</body>
</html>
`
