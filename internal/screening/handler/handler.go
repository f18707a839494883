// Package handler exposes the screening ledger over HTTP. It stays thin:
// decode, delegate to the service, translate domain errors.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veilscreen/internal/oracle"
	"veilscreen/internal/platform/metrics"
	"veilscreen/internal/platform/middleware"
	"veilscreen/internal/policy"
	"veilscreen/internal/screening/models"
	dErrors "veilscreen/pkg/domain-errors"
)

// Service defines the ledger operations the transport needs.
type Service interface {
	Submit(ctx context.Context, grant policy.Capability, textHandle, voiceHandle, categoryHandle oracle.Handle, client string) (models.EntryID, error)
	GetEntry(ctx context.Context, id models.EntryID) (models.Entry, error)
	RequestReveal(ctx context.Context, grant policy.Capability, id models.EntryID) (oracle.RequestID, error)
	OnRevealCallback(ctx context.Context, requestID oracle.RequestID, cleartexts oracle.Cleartexts, proof oracle.Proof) error
	RequestCategoryCountReveal(ctx context.Context, grant policy.Capability, category string) (oracle.RequestID, error)
	OnCategoryCountCallback(ctx context.Context, requestID oracle.RequestID, cleartexts oracle.Cleartexts, proof oracle.Proof) error
	GetCategoryCounter(ctx context.Context, category string) (oracle.Handle, error)
}

// Handler handles the screening ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	metrics   *metrics.Metrics
	validator middleware.CapabilityValidator
}

// New creates a new screening Handler.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.CapabilityValidator) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator,
	}
}

// Register wires the ledger routes. Caller-facing routes require a capability
// token; the oracle callback routes are authenticated by proof verification
// instead.
func (h *Handler) Register(r chi.Router) {
	base := chi.NewRouter()
	base.Use(middleware.Recovery(h.logger))
	base.Use(middleware.RequestID)
	base.Use(middleware.Logger(h.logger))
	base.Use(middleware.Timeout(30 * time.Second))
	base.Use(middleware.ContentTypeJSON)
	base.Use(middleware.Latency(h.metrics))
	base.Use(middleware.ClientMetadata)

	base.Group(func(g chi.Router) {
		g.Use(middleware.RequireCapability(h.validator, h.logger))
		g.Post("/entries", h.handleSubmit)
		g.Get("/entries/{id}", h.handleGetEntry)
		g.Post("/entries/{id}/reveal", h.handleRequestReveal)
		g.Post("/categories/{name}/count/reveal", h.handleRequestCountReveal)
		g.Get("/categories/{name}/counter", h.handleGetCounter)
	})

	base.Post("/callbacks/reveal", h.handleRevealCallback)
	base.Post("/callbacks/category-count", h.handleCountCallback)

	r.Mount("/", base)
}

type submitRequest struct {
	TextHandle     string `json:"text_handle"`
	VoiceHandle    string `json:"voice_handle"`
	CategoryHandle string `json:"category_handle"`
}

type submitResponse struct {
	EntryID uint64 `json:"entry_id"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grant, ok := middleware.GetCapability(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "capability missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.service.Submit(ctx, grant,
		oracle.Handle(req.TextHandle),
		oracle.Handle(req.VoiceHandle),
		oracle.Handle(req.CategoryHandle),
		middleware.GetClientDescription(ctx),
	)
	if err != nil {
		h.logError(ctx, "submit failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{EntryID: uint64(id)})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type requestRevealResponse struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) handleRequestReveal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grant, ok := middleware.GetCapability(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	id, err := entryIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	requestID, err := h.service.RequestReveal(ctx, grant, id)
	if err != nil {
		h.logError(ctx, "reveal request failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, requestRevealResponse{RequestID: string(requestID)})
}

// callbackRequest is the envelope the oracle posts back. Cleartexts and proof
// travel base64 encoded, mirroring the oracle wire format.
type callbackRequest struct {
	RequestID  string   `json:"request_id"`
	Cleartexts []string `json:"cleartexts"`
	Proof      string   `json:"proof"`
}

func (req callbackRequest) decode() (oracle.RequestID, oracle.Cleartexts, oracle.Proof, error) {
	if req.RequestID == "" {
		return "", nil, nil, dErrors.New(dErrors.CodeBadRequest, "request_id is required")
	}
	cleartexts := make(oracle.Cleartexts, len(req.Cleartexts))
	for i, enc := range req.Cleartexts {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return "", nil, nil, dErrors.New(dErrors.CodeMalformedPayload, "cleartexts must be base64 encoded")
		}
		cleartexts[i] = raw
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		return "", nil, nil, dErrors.New(dErrors.CodeMalformedPayload, "proof must be base64 encoded")
	}
	return oracle.RequestID(req.RequestID), cleartexts, proof, nil
}

func (h *Handler) handleRevealCallback(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, h.service.OnRevealCallback)
}

func (h *Handler) handleCountCallback(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, h.service.OnCategoryCountCallback)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request, apply func(context.Context, oracle.RequestID, oracle.Cleartexts, oracle.Proof) error) {
	ctx := r.Context()

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	requestID, cleartexts, proof, err := req.decode()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := apply(ctx, requestID, cleartexts, proof); err != nil {
		h.logError(ctx, "callback rejected", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRequestCountReveal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grant, ok := middleware.GetCapability(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	category := chi.URLParam(r, "name")

	requestID, err := h.service.RequestCategoryCountReveal(ctx, grant, category)
	if err != nil {
		h.logError(ctx, "count reveal request failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, requestRevealResponse{RequestID: string(requestID)})
}

type counterResponse struct {
	Category string `json:"category"`
	Handle   string `json:"handle"`
}

func (h *Handler) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "name")
	counter, err := h.service.GetCategoryCounter(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counterResponse{Category: category, Handle: string(counter)})
}

func entryIDParam(r *http.Request) (models.EntryID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "entry id must be a positive integer")
	}
	return models.EntryID(id), nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	logFn := h.logger.WarnContext
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		logFn = h.logger.ErrorContext
	}
	logFn(ctx, msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(ctx),
	)
}

// writeError centralizes domain error translation to HTTP responses, keeping
// a consistent JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
