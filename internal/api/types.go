package api

import (
	"time"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// SnapshotRequest is the POST /snapshots payload. Snapshot ID is optional;
// omitting it makes every submission a fresh evaluation, supplying it
// makes re-submissions idempotent against the execution log.
type SnapshotRequest struct {
	SnapshotID string                  `json:"snapshot_id,omitempty"`
	TenantID   string                  `json:"tenant_id" validate:"required,uuid"`
	TakenAt    *time.Time              `json:"taken_at,omitempty"`
	Scores     map[string]ScoreRequest `json:"scores" validate:"dive"`

	Recommendations []RecommendationRequest `json:"recommendations,omitempty" validate:"dive"`
}

type ScoreRequest struct {
	Overall  float64            `json:"overall" validate:"gte=0,lte=100"`
	Metrics  map[string]float64 `json:"metrics,omitempty" validate:"dive,gte=0,lte=100"`
	Findings []string           `json:"findings,omitempty"`
}

type RecommendationRequest struct {
	Category    string `json:"category" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
}

// EvaluationResponse is returned with 202 Accepted: dispatch is
// asynchronous, so the counts reflect scheduling, not completion.
type EvaluationResponse struct {
	SnapshotID string        `json:"snapshot_id"`
	Report     domain.Report `json:"report"`
}

type ExecutionResponse struct {
	ID             string         `json:"id"`
	TriggerID      string         `json:"trigger_id"`
	TriggerType    string         `json:"trigger_type"`
	TenantID       string         `json:"tenant_id"`
	SnapshotID     string         `json:"snapshot_id"`
	RootSnapshotID string         `json:"root_snapshot_id"`
	Generation     int            `json:"generation"`
	Status         string         `json:"status"`
	Outcome        *domain.Outcome `json:"outcome,omitempty"`
	ExecutedAt     string         `json:"executed_at"`
	FinalizedAt    string         `json:"finalized_at,omitempty"`
}

type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

type TriggerResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	TenantID     string `json:"tenant_id,omitempty"`
	Priority     int    `json:"priority"`
	TargetModule string `json:"target_module"`
	Global       bool   `json:"global"`
}

type ListTriggersResponse struct {
	Triggers []TriggerResponse `json:"triggers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func executionResponse(rec domain.ExecutionRecord) ExecutionResponse {
	resp := ExecutionResponse{
		ID:             rec.ID.String(),
		TriggerID:      rec.TriggerID.String(),
		TriggerType:    rec.TriggerType,
		TenantID:       rec.TenantID.String(),
		SnapshotID:     rec.SnapshotID.String(),
		RootSnapshotID: rec.RootSnapshotID.String(),
		Generation:     rec.Generation,
		Status:         string(rec.Status),
		Outcome:        rec.Outcome,
		ExecutedAt:     formatTime(rec.ExecutedAt),
	}
	if rec.FinalizedAt != nil {
		resp.FinalizedAt = formatTime(*rec.FinalizedAt)
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
