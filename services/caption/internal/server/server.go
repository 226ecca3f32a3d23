package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Akshay1705/caption.ai/internal/ratelimit"
	"github.com/Akshay1705/caption.ai/internal/telemetry"
	"github.com/Akshay1705/caption.ai/internal/util"
	"github.com/Akshay1705/caption.ai/pkg/domain"
	"github.com/Akshay1705/caption.ai/services/caption/internal/app"
)

const (
	serviceName       = "caption"
	bodyOverheadBytes = 64 << 10
	historyBodyLimit  = 4 << 10
	msgPostDeleted    = "Post deleted successfully"
)

// TokenVerifier resolves the caller identity from a bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Limiter guards the generate route per user.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App             *app.App
	TokenVerifier   TokenVerifier
	GenerateLimiter Limiter
	Metrics         *telemetry.Metrics
	AllowedOrigins  []string
}

// Server exposes HTTP endpoints for the caption service.
type Server struct {
	app           *app.App
	tokenVerifier TokenVerifier
	limiter       Limiter
	metrics       *telemetry.Metrics
	origins       []string
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server: token verifier required")
	}
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		limiter:       cfg.GenerateLimiter,
		metrics:       cfg.Metrics,
		origins:       cfg.AllowedOrigins,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.origins)(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(serviceName, h)
	h = util.WithRequestID(h)
	return otelhttp.NewHandler(h, serviceName)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/api/generate", s.authenticated(s.handleGenerate))
	s.mux.Handle("/api/history", s.authenticated(s.handleHistory))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// authenticated runs before any body is read, so an anonymous caller is
// rejected ahead of input validation.
func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unauthorized := app.Classify(app.ErrUnauthenticated)
		token, ok := bearerToken(r)
		if !ok {
			writeAppError(w, unauthorized)
			return
		}
		id, err := s.tokenVerifier.Verify(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Info("token rejected", "err", err)
			writeAppError(w, unauthorized)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("subject", id.Subject))
		next(w, r.WithContext(ctx), id.OwnerKey())
	})
}

type generateRequest struct {
	Image string `json:"image"`
	domain.Preferences
}

type generateResponse struct {
	Post *domain.Post `json:"post"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, owner string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowGenerate(w, r, owner) {
		return
	}

	limit := int64(s.app.MaxImageBytes())*4/3 + bodyOverheadBytes
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, app.Classify(app.ErrImageTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	gen, err := s.app.Generate(r.Context(), owner, domain.GenerationRequest{
		Image:       req.Image,
		Preferences: req.Preferences,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	if s.app.Persisting() {
		writeJSON(w, http.StatusOK, generateResponse{Post: gen.Post})
		return
	}
	writeJSON(w, http.StatusOK, gen.Result)
}

func (s *Server) allowGenerate(w http.ResponseWriter, r *http.Request, owner string) bool {
	if s.limiter == nil {
		return true
	}
	decision, err := s.limiter.Allow(r.Context(), "generate|"+owner)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
		writeError(w, http.StatusInternalServerError, "Service temporarily unavailable. Please try again later.")
		return false
	}
	if decision.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
	writeError(w, http.StatusTooManyRequests, "Too many caption requests. Please wait a moment and try again.")
	return false
}

func retryAfterSeconds(d ratelimit.Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, owner string) {
	switch r.Method {
	case http.MethodGet:
		posts, err := s.app.ListHistory(r.Context(), owner)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	case http.MethodDelete:
		s.handleDeletePost(w, r, owner)
	default:
		methodNotAllowed(w)
	}
}

type deleteRequest struct {
	ID json.RawMessage `json:"id"`
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, owner string) {
	var req deleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, historyBodyLimit)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := parsePostID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	if err := s.app.DeleteHistory(r.Context(), owner, id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgPostDeleted})
}

// parsePostID accepts a JSON number or a numeric string. Absent, null and
// empty values yield 0, which the app reports as a missing id.
func parsePostID(raw json.RawMessage) (uint64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return 0, nil
		}
	}
	return strconv.ParseUint(text, 10, 64)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if errors.As(err, &appErr) {
		writeError(w, appErr.Status(), appErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again later.")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
