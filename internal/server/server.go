// Package server hosts the lumid HTTP surface: the /ws utterance endpoint
// plus health probes and the Prometheus metrics listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lumivoice/lumi/internal/health"
	"github.com/lumivoice/lumi/internal/observe"
	"github.com/lumivoice/lumi/internal/pipeline"
	"github.com/lumivoice/lumi/internal/session"
)

// DefaultShutdownGrace bounds the drain period when the server stops.
const DefaultShutdownGrace = 5 * time.Second

// maxUtteranceBytes caps a single inbound frame. A minute of 16-bit
// stereo 48 kHz PCM stays well under this.
const maxUtteranceBytes = 32 << 20

// Config holds the server settings.
type Config struct {
	// ListenAddr is the TCP address to bind (e.g., ":8080").
	ListenAddr string

	// ShutdownGrace bounds connection draining on shutdown.
	ShutdownGrace time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Server accepts websocket connections and feeds received utterances into
// the pipeline. Each connection gets its own read loop; each utterance is
// processed in its own goroutine so a slow provider does not stall the
// reader.
type Server struct {
	cfg      Config
	orch     *pipeline.Orchestrator
	registry *session.Registry
	health   *health.Handler
	logger   *slog.Logger
	metrics  *observe.Metrics

	httpSrv  *http.Server
	listener net.Listener
}

// New builds a Server around the orchestrator and session registry.
func New(cfg Config, orch *pipeline.Orchestrator, reg *session.Registry, hh *health.Handler) *Server {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if hh == nil {
		hh = health.NewHandler()
	}

	s := &Server{
		cfg:      cfg,
		orch:     orch,
		registry: reg,
		health:   hh,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	hh.Register(mux)

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(cfg.Metrics, cfg.Logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the bound address once Run has started listening. Useful
// when ListenAddr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.ListenAddr
	}
	return s.listener.Addr().String()
}

// Listen binds the listen address without serving yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	return nil
}

// Run serves until ctx is cancelled, then drains within the shutdown
// grace period. The session report loop runs alongside the listener.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.Addr())
		if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.registry.Run(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.httpSrv.Close()
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.registry.CloseAll()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// fallbackFrame is the text frame shipped when synthesis failed and the
// reply goes out as text.
type fallbackFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Compression is pointless for encoded audio and costs CPU per frame.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxUtteranceBytes)

	id := uuid.NewString()
	s.registry.Create(id, r.RemoteAddr)
	s.metrics.ConnectionOpened(r.Context())
	log := s.logger.With("connection", id, "remote", r.RemoteAddr)

	defer func() {
		s.metrics.ConnectionClosed(context.Background())
		s.registry.Remove(id)
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	// One in-flight write at a time; replies for the same connection are
	// serialized even when utterances overlap.
	var writeMu sync.Mutex
	ctx := r.Context()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				log.Debug("connection closed", "status", status)
			} else {
				log.Info("connection lost", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			log.Debug("ignoring non-binary frame", "type", typ.String(), "bytes", len(data))
			continue
		}
		if len(data) == 0 {
			log.Debug("ignoring empty utterance frame")
			continue
		}

		s.registry.Touch(id, len(data))
		go s.processUtterance(ctx, conn, &writeMu, log, id, data)
	}
}

// processUtterance runs one utterance through the pipeline and writes the
// reply. Stage failures end the exchange silently; the client's watchdog
// handles the missing reply.
func (s *Server) processUtterance(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, log *slog.Logger, id string, data []byte) {
	res, err := s.orch.Process(ctx, data, id)
	if err != nil {
		log.Error("pipeline failed", "err", err, "bytes", len(data))
		return
	}

	switch {
	case len(res.Audio) > 0:
		writeMu.Lock()
		err = conn.Write(ctx, websocket.MessageBinary, res.Audio)
		writeMu.Unlock()
	case res.FallbackText != "":
		frame, merr := json.Marshal(fallbackFrame{Type: "transcription", Text: res.FallbackText})
		if merr != nil {
			log.Error("encode fallback frame", "err", merr)
			return
		}
		writeMu.Lock()
		err = conn.Write(ctx, websocket.MessageText, frame)
		writeMu.Unlock()
	default:
		// Nothing worth answering.
		return
	}
	if err != nil {
		log.Info("reply write failed", "err", err)
	}
}
