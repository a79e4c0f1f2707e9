// Package webview streams the latest edge map to browsers over a
// WebSocket.
//
// Every client gets the newest encoded frame only: a client that cannot
// keep up loses intermediate frames, it never builds a backlog.
package webview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/framehandoff"
	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/internal/edgeimg"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Source yields published edge maps. *framehandoff.Consumer satisfies it.
type Source interface {
	Next(ctx context.Context) (*framehandoff.PublishedFrame, error)
}

// Config configures the server.
type Config struct {
	Addr       string
	Format     string // webp, png
	MaxFPS     int
	MaxClients int

	// StatsInterval is how often the host stats are pushed to clients
	// (default 1s).
	StatsInterval time.Duration
}

// Stats is a snapshot of the server counters.
type Stats struct {
	Clients      int    `json:"clients"`
	Encoded      uint64 `json:"encoded"`
	Sent         uint64 `json:"sent"`
	Superseded   uint64 `json:"superseded"` // frames replaced before a slow client wrote them
	Refused      uint64 `json:"refused"`    // connections over MaxClients
	EncodeErrors uint64 `json:"encode_errors"`
}

// Server is the preview HTTP server.
type Server struct {
	cfg      Config
	enc      edgeimg.Encoder
	hostInfo func() any
	upgrader websocket.Upgrader

	// sources holds the newest attached source not yet picked up by Run.
	sources chan Source

	mu      sync.Mutex
	clients map[*client]struct{}
	// joined is signalled when a client registers.
	joined chan struct{}

	encoded      atomic.Uint64
	sent         atomic.Uint64
	superseded   atomic.Uint64
	refused      atomic.Uint64
	encodeErrors atomic.Uint64
}

// New validates cfg and creates a Server. hostInfo, if non-nil, is
// serialised as JSON for /stats and for the periodic client push.
func New(cfg Config, hostInfo func() any) (*Server, error) {
	enc, err := edgeimg.For(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.MaxFPS <= 0 {
		return nil, fmt.Errorf("invalid max FPS %d", cfg.MaxFPS)
	}
	if cfg.MaxClients <= 0 {
		return nil, fmt.Errorf("invalid max clients %d", cfg.MaxClients)
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Second
	}
	return &Server{
		cfg:      cfg,
		enc:      enc,
		hostInfo: hostInfo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		sources: make(chan Source, 1),
		clients: make(map[*client]struct{}),
		joined:  make(chan struct{}, 1),
	}, nil
}

// Handler returns the HTTP routes: the page at /, the stream at /ws and
// a JSON snapshot at /stats.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.servePage)
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /stats", s.serveStats)
	return mux
}

// Attach makes src the frame source. A source attached while Run is
// streaming another one replaces it.
func (s *Server) Attach(src Source) {
	select {
	case <-s.sources:
	default:
	}
	s.sources <- src
}

// Stats returns a snapshot.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	return Stats{
		Clients:      n,
		Encoded:      s.encoded.Load(),
		Sent:         s.sent.Load(),
		Superseded:   s.superseded.Load(),
		Refused:      s.refused.Load(),
		EncodeErrors: s.encodeErrors.Load(),
	}
}

// Run broadcasts frames and stats until ctx is done. A source that closes
// (its session ended) is dropped and Run waits for the next Attach.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pushStats(ctx)
	}()
	defer wg.Wait()

	var src Source
	for {
		if src == nil {
			select {
			case <-ctx.Done():
				return nil
			case src = <-s.sources:
			}
		}
		src = s.stream(ctx, src)
	}
}

// stream forwards frames from src until it closes, ctx ends or another
// source is attached. It returns the replacement source, if any.
//
// Frames are only taken from src while a client is connected, so an
// unwatched preview leaves them to the other consumers and to the
// producer's recycling.
func (s *Server) stream(ctx context.Context, src Source) Source {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var next Source
	picked := make(chan struct{})
	go func() {
		defer close(picked)
		select {
		case next = <-s.sources:
			cancel()
		case <-sctx.Done():
		}
	}()

	gap := time.Second / time.Duration(s.cfg.MaxFPS)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if !s.awaitClient(sctx) {
			break
		}
		f, err := src.Next(sctx)
		if err != nil {
			if errors.Is(err, framehandoff.ErrClosed) {
				slog.Debug("webview: source closed")
			}
			break
		}
		s.broadcast(f)

		timer.Reset(gap)
		select {
		case <-sctx.Done():
		case <-timer.C:
			continue
		}
		break
	}

	cancel()
	<-picked
	return next
}

// awaitClient blocks until at least one client is connected. It reports
// false when ctx ends first.
func (s *Server) awaitClient(ctx context.Context) bool {
	for {
		s.mu.Lock()
		n := len(s.clients)
		s.mu.Unlock()
		if n > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.joined:
		}
	}
}

// broadcast encodes f once and offers it to every client.
func (s *Server) broadcast(f *framehandoff.PublishedFrame) {
	targets := s.snapshot()
	if len(targets) == 0 {
		return
	}

	var buf bytes.Buffer
	if err := s.enc.Encode(&buf, f.Edges); err != nil {
		if s.encodeErrors.Add(1) == 1 {
			slog.Warn("webview: encode failed", "seq", f.Seq, "error", err)
		}
		return
	}
	s.encoded.Add(1)

	msg := buf.Bytes()
	for _, c := range targets {
		if offer(c.frames, msg) {
			s.superseded.Add(1)
		}
	}
}

func (s *Server) pushStats(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		targets := s.snapshot()
		if len(targets) == 0 {
			continue
		}
		msg, err := json.Marshal(s.report())
		if err != nil {
			slog.Warn("webview: stats encode failed", "error", err)
			continue
		}
		for _, c := range targets {
			offer(c.text, msg)
		}
	}
}

type report struct {
	Web  Stats `json:"web"`
	Host any   `json:"host,omitempty"`
}

func (s *Server) report() report {
	r := report{Web: s.Stats()}
	if s.hostInfo != nil {
		r.Host = s.hostInfo()
	}
	return r
}

func (s *Server) snapshot() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.report()); err != nil {
		slog.Debug("webview: stats write failed", "error", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.register(w, r)
	if err != nil {
		return
	}
	slog.Info("webview: client connected", "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	slog.Info("webview: client disconnected", "remote", r.RemoteAddr)
}

// register upgrades the connection, or answers 503 when the server is
// full.
func (s *Server) register(w http.ResponseWriter, r *http.Request) (*client, error) {
	s.mu.Lock()
	full := len(s.clients) >= s.cfg.MaxClients
	s.mu.Unlock()
	if full {
		s.refused.Add(1)
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return nil, errors.New("full")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		slog.Debug("webview: upgrade failed", "error", err)
		return nil, err
	}
	c := newClient(conn, &s.sent)

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	select {
	case s.joined <- struct{}{}:
	default:
	}
	return c, nil
}

// ListenAndServe serves Handler on cfg.Addr until ctx is done, then shuts
// the server down and disconnects every client.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("webview: listening", "addr", s.cfg.Addr, "format", s.cfg.Format, "max_fps", s.cfg.MaxFPS)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webview: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	// Hijacked connections are not tracked by Shutdown.
	for _, c := range s.snapshot() {
		c.close()
	}
	if err != nil {
		return fmt.Errorf("webview: shutdown: %w", err)
	}
	return nil
}
