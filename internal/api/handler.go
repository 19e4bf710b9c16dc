// Package api exposes snapshot submission and execution-log inspection
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Evaluator runs one evaluation pass for a submitted snapshot.
type Evaluator interface {
	EvaluateSnapshot(ctx context.Context, snap domain.Snapshot) (domain.Report, error)
}

// Store is the read side of the execution log.
type Store interface {
	ListExecutions(ctx context.Context, tenantID, snapshotID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error)
	ListByRoot(ctx context.Context, rootSnapshotID uuid.UUID) ([]domain.ExecutionRecord, error)
}

// DefinitionSource lists the definitions in effect for a tenant.
type DefinitionSource interface {
	ListActive(tenantID uuid.UUID) []domain.TriggerDefinition
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	engine      Evaluator
	store       Store
	definitions DefinitionSource
	db          HealthChecker // optional, nil = simple health only
	validate    *validator.Validate
	log         zerolog.Logger
}

func NewHandler(engine Evaluator, store Store, definitions DefinitionSource, log zerolog.Logger) *Handler {
	return &Handler{
		engine:      engine,
		store:       store,
		definitions: definitions,
		validate:    validator.New(),
		log:         log.With().Str("component", "api").Logger(),
	}
}

// WithHealthChecker sets the database health checker for verbose /health
// responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/snapshots" && r.Method == http.MethodPost:
		h.submitSnapshot(w, r)

	case path == "/executions" && r.Method == http.MethodGet:
		h.listExecutions(w, r)

	case strings.HasPrefix(path, "/chains/") && r.Method == http.MethodGet:
		h.getChain(w, r)

	case path == "/triggers" && r.Method == http.MethodGet:
		h.listTriggers(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// submitSnapshot accepts an analysis snapshot and runs an evaluation pass.
// The response is 202: dispatch continues asynchronously after it.
func (h *Handler) submitSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil || tenantID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	snapshotID := uuid.New()
	if req.SnapshotID != "" {
		snapshotID, err = uuid.Parse(req.SnapshotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snapshot id")
			return
		}
	}

	takenAt := time.Now().UTC()
	if req.TakenAt != nil {
		takenAt = req.TakenAt.UTC()
	}

	snap := domain.Snapshot{
		ID:       snapshotID,
		TenantID: tenantID,
		TakenAt:  takenAt,
		Scores:   make(map[string]domain.CategoryScore, len(req.Scores)),
	}
	for category, score := range req.Scores {
		snap.Scores[category] = domain.CategoryScore{
			Overall:  score.Overall,
			Metrics:  score.Metrics,
			Findings: score.Findings,
		}
	}
	for _, rec := range req.Recommendations {
		snap.Recommendations = append(snap.Recommendations, domain.Recommendation{
			Category:    rec.Category,
			Title:       rec.Title,
			Description: rec.Description,
		})
	}

	report, err := h.engine.EvaluateSnapshot(r.Context(), snap)
	if err != nil {
		h.log.Error().Err(err).Stringer("snapshot", snap.ID).Msg("evaluate snapshot")
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusAccepted, EvaluationResponse{
		SnapshotID: snap.ID.String(),
		Report:     report,
	})
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil || tenantID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	snapshotID := uuid.Nil
	if s := r.URL.Query().Get("snapshot_id"); s != "" {
		snapshotID, err = uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snapshot_id")
			return
		}
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executions, err := h.store.ListExecutions(r.Context(), tenantID, snapshotID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list executions")
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	resp := ListExecutionsResponse{Executions: make([]ExecutionResponse, len(executions))}
	for i, rec := range executions {
		resp.Executions[i] = executionResponse(rec)
	}

	writeJSON(w, http.StatusOK, resp)
}

// getChain returns every execution descending from one root snapshot,
// ordered by generation. Path: /chains/{root_snapshot_id}.
func (h *Handler) getChain(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "chains" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rootID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid root snapshot id")
		return
	}

	executions, err := h.store.ListByRoot(r.Context(), rootID)
	if err != nil {
		h.log.Error().Err(err).Msg("list chain executions")
		writeError(w, http.StatusInternalServerError, "failed to list chain")
		return
	}

	resp := ListExecutionsResponse{Executions: make([]ExecutionResponse, len(executions))}
	for i, rec := range executions {
		resp.Executions[i] = executionResponse(rec)
	}

	writeJSON(w, http.StatusOK, resp)
}

// listTriggers returns the definitions in effect for a tenant, shadowing
// applied.
func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	tenantID := uuid.Nil
	if s := r.URL.Query().Get("tenant_id"); s != "" {
		var err error
		tenantID, err = uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tenant_id")
			return
		}
	}

	defs := h.definitions.ListActive(tenantID)

	resp := ListTriggersResponse{Triggers: make([]TriggerResponse, len(defs))}
	for i, def := range defs {
		tr := TriggerResponse{
			ID:           def.ID.String(),
			Type:         def.Type,
			Priority:     def.Priority,
			TargetModule: def.TargetModule,
			Global:       def.Global(),
		}
		if !def.Global() {
			tr.TenantID = def.TenantID.String()
		}
		resp.Triggers[i] = tr
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not
// specified. Rejects negative values and limits above MaxLimit.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
