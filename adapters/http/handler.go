// Package http provides the HTTP API for the quota monitor.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/quotamon/app"
	"github.com/artpar/quotamon/domain/period"
	"github.com/artpar/quotamon/domain/quota"
	"github.com/artpar/quotamon/pkg/jsonapi"
	"github.com/artpar/quotamon/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Handler serves the quota API.
type Handler struct {
	monitor   *app.Monitor
	store     ports.CounterStore
	metrics   http.Handler
	logger    zerolog.Logger
	hasher    ports.Hasher
	tokenHash string
}

// Deps contains dependencies for the handler.
type Deps struct {
	Monitor *app.Monitor
	Store   ports.CounterStore // probed by /healthz
	Metrics http.Handler       // optional; mounted at /metrics when set
	Logger  zerolog.Logger
	Hasher  ports.Hasher
	// TokenHash is the bcrypt hash of the bearer token required on /v1.
	// Empty disables authentication.
	TokenHash string
}

// NewHandler creates a new quota API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		monitor:   deps.Monitor,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		hasher:    deps.Hasher,
		tokenHash: deps.TokenHash,
	}
}

// Router returns the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Unauthenticated probes
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if h.tokenHash != "" {
			r.Use(h.AuthMiddleware)
		}

		r.Post("/check", h.Check)
		r.Post("/record", h.Record)
		r.Get("/usage", h.ListUsage)
		r.Get("/usage/{resource}", h.GetUsage)
	})

	return r
}

// AuthMiddleware requires a bearer token matching the configured hash.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonapi.WriteUnauthorized(w, "Bearer token required")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if h.hasher == nil || !h.hasher.Compare([]byte(h.tokenHash), token) {
			jsonapi.WriteUnauthorized(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health reports liveness and probes the counter store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.store != nil {
		if _, err := h.store.Read(ctx, "healthz", period.Key(time.Now().UTC())); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// CheckRequest asks whether a call against a resource may proceed.
type CheckRequest struct {
	Resource string `json:"resource"`
}

// Check answers an admission probe: 200 when the call may proceed, 429
// when the quota is exhausted, 503 when usage is unreadable and the
// monitor fails closed.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Resource == "" {
		jsonapi.WriteError(w, jsonapi.ErrValidationRequired("resource"))
		return
	}

	decision, err := h.monitor.CheckAvailable(r.Context(), req.Resource)
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			jsonapi.WriteError(w, jsonapi.ErrQuotaExceeded(req.Resource, exceeded.Count, exceeded.Limit))
			return
		}
		var unavailable *quota.UnavailableError
		if errors.As(err, &unavailable) {
			jsonapi.WriteError(w, jsonapi.ErrUsageUnavailable(req.Resource))
			return
		}
		h.logger.Error().Err(err).Str("resource", req.Resource).Msg("admission check failed")
		jsonapi.WriteInternalError(w, "")
		return
	}

	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{
		"allowed":   decision.Allowed,
		"resource":  req.Resource,
		"count":     decision.Count,
		"limit":     decision.Limit,
		"remaining": decision.Remaining(),
	})
}

// RecordRequest reports the outcome of a completed call.
type RecordRequest struct {
	Resource     string `json:"resource"`
	Operation    string `json:"operation,omitempty"`
	Success      *bool  `json:"success,omitempty"` // default: true
	QuotaRelated bool   `json:"quota_related,omitempty"`
}

// Record accepts a call outcome for metering. Metering failures never
// surface to the caller, so this always answers 202 once the body parses.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Resource == "" {
		jsonapi.WriteError(w, jsonapi.ErrValidationRequired("resource"))
		return
	}

	succeeded := req.Success == nil || *req.Success
	h.monitor.RecordCall(r.Context(), req.Resource, app.Outcome{
		Operation:    req.Operation,
		Succeeded:    succeeded,
		QuotaRelated: req.QuotaRelated,
	})

	jsonapi.WriteAccepted(w, jsonapi.Meta{
		"resource": req.Resource,
		"recorded": true,
	})
}

// ListUsage returns a usage snapshot for every configured resource.
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	names := h.monitor.Resources()

	resources := make([]jsonapi.Resource, 0, len(names))
	var failed string
	for _, name := range names {
		snap, err := h.monitor.Usage(r.Context(), name)
		if err != nil {
			h.logger.Error().Err(err).Str("resource", name).Msg("usage snapshot failed")
			if failed == "" {
				failed = name
			}
			continue
		}
		resources = append(resources, usageResource(snap))
	}

	if len(resources) == 0 && failed != "" {
		jsonapi.WriteError(w, jsonapi.ErrUsageUnavailable(failed))
		return
	}

	jsonapi.WriteCollection(w, http.StatusOK, resources)
}

// GetUsage returns the usage snapshot for one configured resource.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")

	if !h.monitor.Configured(name) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownResource(name))
		return
	}

	snap, err := h.monitor.Usage(r.Context(), name)
	if err != nil {
		h.logger.Error().Err(err).Str("resource", name).Msg("usage snapshot failed")
		jsonapi.WriteError(w, jsonapi.ErrUsageUnavailable(name))
		return
	}

	jsonapi.WriteResource(w, http.StatusOK, usageResource(snap))
}

func usageResource(s app.Snapshot) jsonapi.Resource {
	attrs := map[string]any{
		"resource": s.Resource,
		"period":   s.Period,
		"count":    s.Count,
		"limit":    s.Limit,
		"percent":  s.Percent,
		"level":    s.Level.String(),
	}
	if !s.LastUpdated.IsZero() {
		attrs["last_updated"] = s.LastUpdated.UTC().Format(time.RFC3339)
	}
	if s.LastOperation != "" {
		attrs["last_operation"] = s.LastOperation
	}

	return jsonapi.Resource{
		Type:       "usage",
		ID:         s.Resource,
		Attributes: attrs,
	}
}
