package jam

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"jam-service/internal/catalog"
)

var upgrader = websocket.Upgrader{
	// The service sits behind a gateway; origin filtering happens there.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server wires the registry, the event publisher and the HTTP/websocket
// surface together.
type Server struct {
	registry *Registry
	events   *EventPublisher

	manifestPath string

	// Liveness sweep tuning; defaults are production values, tests
	// shorten them.
	sweepInterval time.Duration
	idleTimeout   time.Duration
}

const (
	defaultSweepInterval = 60 * time.Second
	defaultIdleTimeout   = 5 * time.Minute
)

func NewServer(registry *Registry, events *EventPublisher, manifestPath string) *Server {
	return &Server{
		registry:      registry,
		events:        events,
		manifestPath:  manifestPath,
		sweepInterval: defaultSweepInterval,
		idleTimeout:   defaultIdleTimeout,
	}
}

// Router builds the chi router with the service's routes.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/jams", s.handleCreateJam)
	r.Get("/jams/{id}", s.handleGetJam)
	r.Get("/ws/jam/{id}", s.handleWS)

	r.Get("/songs", s.handleGetSongs)
	r.Get("/load-audio", s.handleLoadAudio)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "jam-service",
	})
}

func (s *Server) handleCreateJam(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req struct {
		HostName string `json:"host_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.HostName == "" {
		req.HostName = "Host"
	}
	if err := validateDisplayName(req.HostName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j := s.registry.Create(req.HostName)
	log.Printf("jam-service: created jam %s for host %q", j.ID(), req.HostName)
	s.events.Publish(r.Context(), eventJamCreated, map[string]any{
		"jam_id":    j.ID(),
		"host_name": req.HostName,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"jam_id":     j.ID(),
		"host_name":  req.HostName,
		"created_at": formatCreatedAt(j.createdAt),
	})
}

func (s *Server) handleGetJam(w http.ResponseWriter, r *http.Request) {
	j := s.registry.Get(chi.URLParam(r, "id"))
	if j == nil {
		writeError(w, http.StatusNotFound, "jam session not found")
		return
	}
	writeJSON(w, http.StatusOK, j.snapshot())
}

func (s *Server) handleGetSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := catalog.Load(s.manifestPath)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// handleLoadAudio resolves a song source: remote URLs are handed back for
// the client to fetch, local manifest paths are served from disk.
func (s *Server) handleLoadAudio(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		writeJSON(w, http.StatusOK, map[string]string{"url": path})
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

// handleWS runs the whole participant lifecycle: validate, assign a role,
// send the initial snapshot, pump messages, tear down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	jamID := chi.URLParam(r, "id")
	username := r.URL.Query().Get("username")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("jam-service: ws upgrade: %v", err)
		return
	}

	j := s.registry.Get(jamID)
	if j == nil {
		closeConn(conn, websocket.ClosePolicyViolation, "jam session not found")
		return
	}
	if err := validateDisplayName(username); err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	p, isHost, err := j.join(conn, username)
	if err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	log.Printf("jam-service: jam %s: %q joined (host=%v)", jamID, username, isHost)

	if err := p.sendCompressed(j.initialSync(isHost)); err != nil {
		s.teardown(j, p, isHost)
		return
	}
	j.broadcastParticipants()

	s.readLoop(j, p, isHost)
	s.teardown(j, p, isHost)
}

// readLoop blocks on inbound messages with a bounded wait: a background
// ticker probes silent peers and the read deadline trips after two missed
// probes. A failed probe is a disconnect.
func (s *Server) readLoop(j *Session, p *participant, isHost bool) {
	done := make(chan struct{})
	defer close(done)
	go pingLoop(p, done)

	_ = p.conn.SetReadDeadline(time.Now().Add(readWait))
	p.conn.SetPongHandler(func(string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(readWait))
		j.touchHeartbeat(p)
		return nil
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(readWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed frames are ignored, the loop continues.
			continue
		}
		j.touch(p)
		if !s.dispatch(j, p, isHost, msg) {
			return
		}
	}
}

func pingLoop(p *participant, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.ping(); err != nil {
				// Unblocks the reader, which tears the connection down.
				_ = p.conn.Close()
				return
			}
		}
	}
}

// dispatch applies one inbound message. Unknown types are ignored. An
// unexpected fault is contained to this connection: it closes with an
// internal-error code and the jam state stays intact for everyone else.
func (s *Server) dispatch(j *Session, p *participant, isHost bool, msg inboundMessage) (alive bool) {
	alive = true
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("jam-service: jam %s: handler fault for %q: %v", j.ID(), p.name, rec)
			p.closeWith(websocket.CloseInternalServerErr, "internal error")
			alive = false
		}
	}()

	switch msg.Type {
	case msgPlayerStateUpdate:
		if msg.IsPlaying == nil || msg.Position == nil {
			return
		}
		if payload, targets, ok := j.applyPlayerState(p, msg); ok {
			j.deliver(targets, payload)
		}

	case msgSongChange:
		if msg.Song == nil {
			return
		}
		if payload, targets, ok := j.changeSong(p, msg.Song); ok {
			j.deliver(targets, payload)
		}

	case msgPlaylistUpdate:
		if payload, targets, ok := j.replacePlaylist(p, msg.Playlist); ok {
			j.deliver(targets, payload)
		}

	case msgSeek:
		if msg.Position == nil {
			return
		}
		if payload, targets, ok := j.seek(p, *msg.Position); ok {
			j.deliver(targets, payload)
		}

	case msgSongEnded:
		if payload, targets, ok := j.advanceSong(); ok {
			j.deliver(targets, payload)
		}

	case msgSyncRequest:
		if err := p.sendCompressed(j.syncReply()); err != nil {
			return false
		}

	case msgChatMessage:
		text, ok := validateChatMessage(msg.Message)
		if !ok {
			return
		}
		payload, targets := j.chat(p, text)
		j.deliver(targets, payload)

	case msgHostInit:
		if !isHost {
			return
		}
		if payload, targets, ok := j.hostInit(p, msg); ok {
			j.deliver(targets, payload)
		}
	}
	return
}

// teardown runs once the connection's read loop has exited. A departing
// host ends the whole jam; a departing guest is removed synchronously so
// its name never blocks an immediate rejoin.
func (s *Server) teardown(j *Session, p *participant, isHost bool) {
	if isHost {
		reason := "Host " + p.name + " left the session"
		if s.endJam(j, reason, websocket.CloseNormalClosure, p) {
			s.events.Publish(context.Background(), eventJamEnded, map[string]any{
				"jam_id": j.ID(),
				"reason": reason,
			})
		}
		_ = p.conn.Close()
		return
	}
	j.removeGuest(p)
	_ = p.conn.Close()
	j.broadcastParticipants()
	log.Printf("jam-service: jam %s: %q left", j.ID(), p.name)
}

// endJam destroys a jam: everyone still reachable gets a jam_ended notice,
// every connection is closed, and the id is removed from the registry.
// Idempotent, so host departure and the liveness sweep cannot double-fire;
// reports whether this call did the teardown.
func (s *Server) endJam(j *Session, reason string, closeCode int, exclude *participant) bool {
	remaining := j.shutdown(exclude)
	if remaining == nil {
		return false
	}
	s.registry.Remove(j.ID())
	log.Printf("jam-service: jam %s ended: %s", j.ID(), reason)

	notice := map[string]any{
		"type":   msgJamEnded,
		"reason": reason,
	}
	for _, p := range remaining {
		_ = p.sendCompressed(notice)
		p.closeWith(closeCode, reason)
	}
	return true
}
