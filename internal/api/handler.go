package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/auth"
	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const (
	maxStartUploadBody = 16 << 10
	maxUploadChunkBody = 1 << 20
)

// ServiceProvider returns the update service client for a mode.
type ServiceProvider interface {
	Service(mode domain.Mode, ts oauth2.TokenSource) (domain.UpdateService, bool)
}

// ReadinessCheck is one dependency reported by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configures a Handler.
type Options struct {
	AllowedOrigins []string
	LoginURL       string
	RequiredRole   string
	Checks         []ReadinessCheck
	Logger         *slog.Logger
}

// Handler wires HTTP routes to the update services.
type Handler struct {
	authn    *auth.Authenticator
	services ServiceProvider
	opts     Options
	logger   *slog.Logger
}

// NewHandler creates a Handler instance.
func NewHandler(authn *auth.Authenticator, services ServiceProvider, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "/login"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{authn: authn, services: services, opts: opts, logger: opts.Logger}
}

// Router returns a configured chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: !slices.Contains(h.opts.AllowedOrigins, "*"),
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Route("/api/update", func(r chi.Router) {
		r.Post("/start-upload", h.withAuth(h.handleStartUpload))
		r.Post("/upload-chunk", h.withAuth(h.handleUploadChunk))
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := map[string]string{}
	for _, c := range h.opts.Checks {
		if err := c.Check(ctx); err != nil {
			failures[c.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		h.logger.Warn("readiness check failed", "failures", failures)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StartUploadBody is the JSON body of POST /api/update/start-upload.
type StartUploadBody struct {
	Mode      string `json:"mode"`
	VersionID string `json:"versionId"`
	Hash      string `json:"hash"`
	Type      string `json:"type"`
	ChunkSize int64  `json:"chunkSize"`
	FileSize  int64  `json:"fileSize"`
}

// UploadChunkBody is the JSON body of POST /api/update/upload-chunk. Offset
// is a chunk index and Data is standard base64.
type UploadChunkBody struct {
	Mode         string `json:"mode"`
	UploadID     string `json:"uploadId"`
	ConcurrentID string `json:"concurrentId"`
	Offset       int64  `json:"offset"`
	Data         string `json:"data"`
}

func (h *Handler) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var body StartUploadBody
	if !decodeBody(w, r, maxStartUploadBody, &body) {
		return
	}

	mode, err := domain.ParseMode(body.Mode)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	req := domain.StartUploadRequest{
		VersionID: body.VersionID,
		Hash:      body.Hash,
		Type:      body.Type,
		ChunkSize: body.ChunkSize,
		FileSize:  body.FileSize,
	}
	if err := domain.ValidateStartUpload(req); err != nil {
		writeRemoteError(w, err)
		return
	}

	svc, ok := h.services.Service(mode, p.TokenSource)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, unavailableMessage)
		return
	}

	resp, err := svc.StartUploadVersion(r.Context(), req)
	if err != nil {
		h.logger.Warn("start upload failed", "mode", mode, "version_id", req.VersionID, "user_id", p.UserID, "error", err)
		writeRemoteError(w, err)
		return
	}
	if resp.ExistingChunks == nil {
		resp.ExistingChunks = []domain.WireChunk{}
	}
	h.logger.Info("upload started",
		"mode", mode,
		"version_id", req.VersionID,
		"upload_id", resp.UploadID,
		"user_id", p.UserID,
		"existing_ranges", len(resp.ExistingChunks),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var body UploadChunkBody
	if !decodeBody(w, r, maxUploadChunkBody, &body) {
		return
	}

	mode, err := domain.ParseMode(body.Mode)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	if body.Offset < 0 || body.Offset > math.MaxUint32 {
		writeRemoteError(w, &domain.ValidationError{Field: "offset", Reason: "must be a non-negative chunk index"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		writeRemoteError(w, &domain.ValidationError{Field: "data", Reason: "must be base64 encoded", Err: err})
		return
	}
	req := domain.UploadChunkRequest{
		UploadID:     body.UploadID,
		ConcurrentID: body.ConcurrentID,
		Offset:       uint32(body.Offset),
		Data:         data,
	}
	if err := domain.ValidateUploadChunk(req); err != nil {
		writeRemoteError(w, err)
		return
	}

	svc, ok := h.services.Service(mode, p.TokenSource)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, unavailableMessage)
		return
	}

	if err := svc.UploadVersionChunk(r.Context(), req); err != nil {
		h.logger.Warn("upload chunk failed", "mode", mode, "upload_id", req.UploadID, "offset", req.Offset, "error", err)
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, invalidInputMessage)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
