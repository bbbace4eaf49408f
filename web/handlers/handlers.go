// Package handlers provides the HTTP API for the debate service.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/export"
	"github.com/arbiterhq/arbiter/internal/format"
	"github.com/arbiterhq/arbiter/internal/gateway"
	"github.com/arbiterhq/arbiter/internal/orchestrator"
	"github.com/arbiterhq/arbiter/internal/persona"
	"github.com/arbiterhq/arbiter/provider"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service  *orchestrator.Service
	gateway  *gateway.Gateway
	registry *provider.Registry
	health   *providerHealthCache
}

// New creates a new Handler.
func New(service *orchestrator.Service, gw *gateway.Gateway, registry *provider.Registry) *Handler {
	return &Handler{
		service:  service,
		gateway:  gw,
		registry: registry,
		health:   newProviderHealthCache(defaultProviderHealthCachePath(), 0),
	}
}

// Router builds the chi router with all API routes registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", h.handleProviders)
		r.Get("/providers/health", h.handleProvidersHealth)
		r.Get("/models", h.handleModels)
		r.Get("/personas", h.handlePersonas)
		r.Get("/formats", h.handleFormats)

		r.Route("/debates", func(r chi.Router) {
			r.Post("/", h.handleCreateDebate)
			r.Get("/", h.handleListDebates)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetDebate)
				r.Delete("/", h.handleDeleteDebate)
				r.Post("/start", h.handleStartDebate)
				r.Post("/cancel", h.handleCancelDebate)
				r.Post("/participants", h.handleAddParticipant)
				r.Delete("/participants/{participantID}", h.handleRemoveParticipant)
				r.Post("/responses", h.handleSubmitResponse)
				r.Get("/rounds", h.handleListRounds)
				r.Get("/results", h.handleGetResults)
				r.Get("/export/{format}", h.handleExportDebate)
				r.Get("/events", h.handleDebateEvents)
			})
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.json(w, map[string]string{"status": "ok"})
}

// participantRequest extends the participant config with an optional
// persona that resolves to a system hint.
type participantRequest struct {
	core.NewParticipantConfig
	Persona string `json:"persona,omitempty"`
}

func (pr participantRequest) config() (core.NewParticipantConfig, error) {
	config := pr.NewParticipantConfig
	if pr.Persona != "" {
		p := persona.Get(pr.Persona)
		if p == nil {
			return config, core.Validationf("unknown persona %q (available: %s)", pr.Persona, strings.Join(persona.List(), ", "))
		}
		if config.Params.SystemHint == "" {
			config.Params.SystemHint = p.SystemHint
		}
	}
	return config, nil
}

// Debate handlers

func (h *Handler) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	type createRequest struct {
		core.NewDebateConfig
		Participants []participantRequest `json:"participants,omitempty"`
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	debate, err := h.service.CreateDebate(r.Context(), req.NewDebateConfig)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	// Optional inline participants save a round-trip per member
	for _, pr := range req.Participants {
		pc, err := pr.config()
		if err != nil {
			h.serviceError(w, err)
			return
		}
		if _, err := h.service.AddParticipant(r.Context(), debate.ID, pc); err != nil {
			h.serviceError(w, err)
			return
		}
	}

	created, err := h.service.GetDebate(r.Context(), debate.ID)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) handleListDebates(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	debates, err := h.service.ListDebates(r.Context(), limit, offset)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if debates == nil {
		debates = []*core.DebateSummary{}
	}

	h.json(w, debates)
}

func (h *Handler) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	debate, err := h.service.GetDebate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.json(w, debate)
}

func (h *Handler) handleDeleteDebate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDebate(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartDebate(w http.ResponseWriter, r *http.Request) {
	debate, err := h.service.StartDebate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.json(w, debate)
}

func (h *Handler) handleCancelDebate(w http.ResponseWriter, r *http.Request) {
	debate, err := h.service.CancelDebate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.json(w, debate)
}

// Participant handlers

func (h *Handler) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var pr participantRequest
	if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	config, err := pr.config()
	if err != nil {
		h.serviceError(w, err)
		return
	}

	participant, err := h.service.AddParticipant(r.Context(), chi.URLParam(r, "id"), config)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(participant)
}

func (h *Handler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	debateID := chi.URLParam(r, "id")
	participantID := chi.URLParam(r, "participantID")

	if err := h.service.RemoveParticipant(r.Context(), debateID, participantID); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Round and response handlers

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var input orchestrator.SubmitResponseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := h.service.SubmitResponse(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) handleListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.service.ListRounds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if rounds == nil {
		rounds = []*core.Round{}
	}
	h.json(w, rounds)
}

func (h *Handler) handleGetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.json(w, results)
}

func (h *Handler) handleExportDebate(w http.ResponseWriter, r *http.Request) {
	format := export.Format(strings.ToLower(chi.URLParam(r, "format")))

	exporter, err := export.GetExporter(format)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.service.GetResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	filename := export.GenerateFilename(results.Debate, exporter.FileExtension())
	switch format {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case export.FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	case export.FormatPDF:
		w.Header().Set("Content-Type", "application/pdf")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")

	if err := exporter.Export(results, w); err != nil {
		slog.Error("Export failed", "id", results.Debate.ID, "format", format, "error", err)
	}
}

// Provider handlers

func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		Name      string `json:"name"`
		Streaming bool   `json:"streaming"`
	}

	var providers []providerInfo
	for _, a := range h.registry.List() {
		providers = append(providers, providerInfo{
			Name:      a.Name(),
			Streaming: a.Supports(provider.CapabilityStreaming),
		})
	}
	if providers == nil {
		providers = []providerInfo{}
	}

	h.json(w, providers)
}

func (h *Handler) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	statuses := make(map[string]provider.HealthStatus)
	for _, name := range h.registry.Names() {
		if !refresh {
			if status, ok := h.health.GetFresh(name); ok {
				statuses[name] = status
				continue
			}
		}
		status, err := h.gateway.CheckHealth(r.Context(), name)
		if err != nil {
			status = provider.HealthStatus{Provider: name, Available: false, Error: err.Error()}
		}
		h.health.Set(name, status)
		statuses[name] = status
	}

	h.json(w, statuses)
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	h.json(w, h.gateway.ListAllModels(r.Context()))
}

func (h *Handler) handlePersonas(w http.ResponseWriter, r *http.Request) {
	h.json(w, persona.DefaultPersonas())
}

func (h *Handler) handleFormats(w http.ResponseWriter, r *http.Request) {
	h.json(w, format.DefaultFormats())
}

// Helpers

func (h *Handler) json(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// serviceError maps service-layer errors onto HTTP status codes.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	var transition *core.StateTransitionError
	switch {
	case core.IsNotFound(err):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case core.IsValidation(err):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &transition):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case core.IsRateLimit(err):
		h.jsonError(w, err.Error(), http.StatusTooManyRequests)
	default:
		slog.Error("Request failed", "error", err)
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
