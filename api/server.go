package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-pizzeria/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	statex "github.com/tanpawarit/chative-pizzeria/agent/state"
	qstashx "github.com/tanpawarit/chative-pizzeria/pkg/qstash"
)

const (
	CleanupPath        = "/v1/admin/cleanup"
	DefaultRetention   = 7 * 24 * time.Hour
	readinessTimeout   = 3 * time.Second
	maxRequestBodySize = 64 << 10
)

// Agent runs one dialogue turn.
type Agent interface {
	HandleMessage(ctx context.Context, userID, text string) (contractx.TextReply, error)
}

// Conversations is the slice of the context manager exposed over HTTP.
type Conversations interface {
	Stats(ctx context.Context, threadID string) (statex.Stats, error)
	ClearCache() int
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

// Verifier authenticates signed scheduler callbacks.
type Verifier interface {
	Verify(signature string, body []byte, destination string) error
}

type Check func(ctx context.Context) error

type Config struct {
	AdminToken string
	PublicURL  string
	Retention  time.Duration
}

type Server struct {
	cfg      Config
	agent    Agent
	convs    Conversations
	verifier Verifier
	metrics  http.Handler
	checks   map[string]Check
}

type Option func(*Server)

func WithVerifier(v Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metrics = h
		}
	}
}

// WithReadinessCheck adds a dependency probed by /readyz.
func WithReadinessCheck(name string, check Check) Option {
	return func(s *Server) {
		if name != "" && check != nil {
			s.checks[name] = check
		}
	}
}

func New(cfg Config, agent Agent, convs Conversations, opts ...Option) *Server {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	s := &Server{
		cfg:    cfg,
		agent:  agent,
		convs:  convs,
		checks: map[string]Check{},
		metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Post("/v1/agent", s.handleAgent)
	r.Get("/v1/conversations/{userID}/stats", s.handleStats)
	r.With(s.requireAdmin).Post("/v1/admin/cache/clear", s.handleClearCache)
	r.Post(CleanupPath, s.handleCleanup)

	return r
}

type agentRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type agentResponse struct {
	Response    string `json:"response"`
	MessageType string `json:"message_type"`
	HasImage    bool   `json:"has_image"`
	ImagePath   string `json:"image_path"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.agent.HandleMessage(r.Context(), req.UserID, req.Text)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidUser) {
			respondError(w, http.StatusBadRequest, "invalid_user", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
		return
	}

	resp := agentResponse{
		Response:    reply.Text,
		MessageType: string(reply.MessageType()),
	}
	if reply.MessageType() == contractx.MessageTypeImage {
		resp.HasImage = true
		resp.ImagePath = reply.Image.ImagePath
		if resp.Response == "" {
			resp.Response = reply.Image.Text
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	stats, err := s.convs.Stats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, statex.ErrInvalidThread) {
			respondError(w, http.StatusBadRequest, "invalid_user", err.Error())
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("conversation stats failed")
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	cleared := s.convs.ClearCache()
	log.Info().Int("cleared", cleared).Msg("conversation cache cleared")
	respondJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

type cleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !s.adminAuthorized(r) {
		if err := s.verifySignature(r, body); err != nil {
			log.Warn().Err(err).Msg("cleanup callback rejected")
			respondError(w, http.StatusUnauthorized, "unauthorized", "admin token or valid signature required")
			return
		}
	}

	retention := s.cfg.Retention
	if len(strings.TrimSpace(string(body))) > 0 {
		var req cleanupRequest
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if req.RetentionDays > 0 {
			retention = time.Duration(req.RetentionDays) * 24 * time.Hour
		}
	}

	removed, err := s.convs.Cleanup(r.Context(), retention)
	if err != nil {
		log.Error().Err(err).Msg("conversation cleanup failed")
		respondError(w, http.StatusInternalServerError, "cleanup_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"removed":         removed,
		"retention_hours": int(retention.Hours()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{"status": state, "checks": results})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.adminAuthorized(r) {
			respondError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.cfg.AdminToken)) == 1
}

func (s *Server) verifySignature(r *http.Request, body []byte) error {
	if s.verifier == nil {
		return qstashx.ErrMissingSignature
	}
	destination := ""
	if base := strings.TrimRight(s.cfg.PublicURL, "/"); base != "" {
		destination = base + CleanupPath
	}
	return s.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body, destination)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
