// Package httpapi serves view state, poller controls, backend metadata and
// inference submissions over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danweinerdev/go-opsboard"
	"github.com/danweinerdev/go-opsboard/source"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	backendTimeout = 5 * time.Second
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
)

// Board is the narrow board contract required by the API.
type Board interface {
	Views() []string
	View(name string) (*opsboard.View, bool)
	Stats() opsboard.PollStats
	ViewStats(name string) (opsboard.PollStats, bool)
	Interval() time.Duration
	Enabled() bool
	SetInterval(d time.Duration)
	SetEnabled(enabled bool)
	Thresholds() opsboard.Thresholds
}

// Backend reads gateway metadata and forwards inference requests. It may
// be nil.
type Backend interface {
	Health(ctx context.Context) (*source.Health, error)
	Meta(ctx context.Context) (*source.Architecture, error)
	PredictClassifier(ctx context.Context, features map[string]any) (*source.ClassifierResponse, error)
	QueryLLM(ctx context.Context, query string) (*source.LLMResponse, error)
}

// Server provides the view API.
type Server struct {
	addr     string
	board    Board
	backend  Backend
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time

	submissions map[string]*opsboard.SubmissionLog
}

// NewServer creates a server for board. backend may be nil.
func NewServer(addr string, board Board, backend Backend, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:    addr,
		board:   board,
		backend: backend,
		logger:  logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	s.submissions = map[string]*opsboard.SubmissionLog{
		opsboard.KindClassifier: opsboard.NewSubmissionLog(opsboard.KindClassifier, opsboard.MetricsHistorySize),
		opsboard.KindLLM:        opsboard.NewSubmissionLog(opsboard.KindLLM, opsboard.MetricsHistorySize),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/views", s.handleViews)
	r.GET("/api/views/:name", s.handleView)
	r.GET("/api/views/:name/stats", s.handleViewStats)
	r.POST("/api/views/:name/reset", s.handleReset)
	r.GET("/api/views/:name/stream", s.handleStream)
	r.GET("/api/classify", s.handleClassify)
	r.PUT("/api/poller", s.handlePoller)
	r.GET("/api/backend/health", s.handleBackendHealth)
	r.GET("/api/backend/meta", s.handleBackendMeta)
	r.POST("/api/predict/classifier", s.handlePredictClassifier)
	r.POST("/api/predict/llm", s.handleQueryLLM)
	r.GET("/api/predict/:kind/history", s.handleSubmissions)
	r.DELETE("/api/predict/:kind/history", s.handleClearSubmissions)

	s.engine = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.engine,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api listening", "addr", listener.Addr().String())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, closing open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts it down when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(stopCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.board.Stats()
	status := "ok"
	if stats.Stale() {
		status = "stale"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"uptime":   time.Since(s.started).String(),
		"interval": s.board.Interval().String(),
		"enabled":  s.board.Enabled(),
		"stats":    stats,
	})
}

func (s *Server) handleViews(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"views": s.board.Views()})
}

func (s *Server) lookup(c *gin.Context) (*opsboard.View, bool) {
	name := c.Param("name")
	v, ok := s.board.View(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown view " + strconv.Quote(name)})
	}
	return v, ok
}

func (s *Server) handleView(c *gin.Context) {
	v, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v.State(opsboard.ParseOrder(c.Query("order"))))
}

func (s *Server) handleViewStats(c *gin.Context) {
	name := c.Param("name")
	stats, ok := s.board.ViewStats(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown view " + strconv.Quote(name)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"view":  name,
		"stale": stats.Stale(),
		"stats": stats,
	})
}

func (s *Server) handleReset(c *gin.Context) {
	v, ok := s.lookup(c)
	if !ok {
		return
	}
	v.Reset()
	s.logger.Info("view reset", "view", v.Name())
	c.JSON(http.StatusOK, v.State(opsboard.Chronological))
}

func (s *Server) handleClassify(c *gin.Context) {
	raw := c.Query("latency_ms")
	ms, err := strconv.ParseFloat(raw, 64)
	if raw == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latency_ms must be a number"})
		return
	}

	thresholds := s.board.Thresholds()
	if name := c.Query("view"); name != "" {
		v, ok := s.board.View(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown view " + strconv.Quote(name)})
			return
		}
		thresholds = v.State(opsboard.Chronological).Thresholds
	}

	c.JSON(http.StatusOK, gin.H{
		"latency_ms": ms,
		"tier":       thresholds.Classify(ms),
		"thresholds": thresholds,
	})
}

type pollerRequest struct {
	Interval *string `json:"interval"`
	Enabled  *bool   `json:"enabled"`
}

func (s *Server) handlePoller(c *gin.Context) {
	var req pollerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.Interval == nil && req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval or enabled is required"})
		return
	}

	if req.Interval != nil {
		d, err := time.ParseDuration(*req.Interval)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be a non-negative duration"})
			return
		}
		s.board.SetInterval(d)
	}
	if req.Enabled != nil {
		s.board.SetEnabled(*req.Enabled)
	}

	c.JSON(http.StatusOK, gin.H{
		"interval": s.board.Interval().String(),
		"enabled":  s.board.Enabled(),
	})
}

func (s *Server) handleStream(c *gin.Context) {
	v, ok := s.lookup(c)
	if !ok {
		return
	}

	// Subscribe before the first write so no update is missed.
	updates, stop := v.Watch()
	defer stop()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "view", v.Name(), "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain client frames so close and pong control messages are handled.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeState(conn, v.State(opsboard.Chronological)); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case state := <-updates:
			if err := writeState(conn, state); err != nil {
				s.logger.Debug("websocket send failed", "view", v.Name(), "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeState(conn *websocket.Conn, state opsboard.ViewState) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(state)
}

func (s *Server) handleBackendHealth(c *gin.Context) {
	if s.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no backend configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), backendTimeout)
	defer cancel()

	h, err := s.backend.Health(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleBackendMeta(c *gin.Context) {
	if s.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no backend configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), backendTimeout)
	defer cancel()

	a, err := s.backend.Meta(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

type classifierRequest struct {
	Features map[string]any `json:"features"`
}

type llmRequest struct {
	Query string `json:"query"`
}

func (s *Server) handlePredictClassifier(c *gin.Context) {
	if s.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no backend configured"})
		return
	}
	var req classifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Features) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "features are required"})
		return
	}

	resp, err := s.backend.PredictClassifier(c.Request.Context(), req.Features)
	if err != nil {
		s.failSubmission(c, opsboard.KindClassifier, req, err)
		return
	}
	s.recordSubmission(c, opsboard.KindClassifier, req, resp, resp.LatencyMs)
}

func (s *Server) handleQueryLLM(c *gin.Context) {
	if s.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no backend configured"})
		return
	}
	var req llmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	resp, err := s.backend.QueryLLM(c.Request.Context(), req.Query)
	if err != nil {
		s.failSubmission(c, opsboard.KindLLM, req, err)
		return
	}
	s.recordSubmission(c, opsboard.KindLLM, req, resp, resp.LatencyMs)
}

// recordSubmission classifies a successful response by its reported latency.
func (s *Server) recordSubmission(c *gin.Context, kind string, req, resp any, latencyMs float64) {
	sub := s.submissions[kind].Record(opsboard.Submission{
		Request:   req,
		Response:  resp,
		LatencyMs: latencyMs,
		Tier:      s.board.Thresholds().Classify(latencyMs),
	})
	s.logger.Info("inference submitted", "kind", kind, "latency_ms", latencyMs, "tier", sub.Tier)
	c.JSON(http.StatusOK, sub)
}

func (s *Server) failSubmission(c *gin.Context, kind string, req any, err error) {
	sub := s.submissions[kind].Record(opsboard.Submission{
		Request: req,
		Error:   err.Error(),
		Tier:    opsboard.TierNeutral,
	})
	s.logger.Warn("inference failed", "kind", kind, "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "submission": sub})
}

func (s *Server) submissionLog(c *gin.Context) (*opsboard.SubmissionLog, bool) {
	kind := c.Param("kind")
	log, ok := s.submissions[kind]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown submission kind " + strconv.Quote(kind)})
	}
	return log, ok
}

func (s *Server) handleSubmissions(c *gin.Context) {
	log, ok := s.submissionLog(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": log.Kind(), "submissions": log.Recent()})
}

func (s *Server) handleClearSubmissions(c *gin.Context) {
	log, ok := s.submissionLog(c)
	if !ok {
		return
	}
	log.Clear()
	s.logger.Info("submission history cleared", "kind", log.Kind())
	c.JSON(http.StatusOK, gin.H{"kind": log.Kind(), "submissions": []opsboard.Submission{}})
}
