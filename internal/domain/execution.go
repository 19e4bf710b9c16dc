package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusFailed
}

// Outcome is what a module handler returned for one dispatch.
type Outcome struct {
	Success bool           `json:"success"`
	Action  string         `json:"action,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// NextTriggers lists trigger types to re-evaluate against a synthetic
	// follow-up snapshot.
	NextTriggers []string `json:"next_triggers,omitempty"`

	// Error is set iff Success is false.
	Error string `json:"error,omitempty"`
}

// ExecutionRecord is the durable, append-only record of one dispatch attempt.
//
// The tuple (TriggerID, SnapshotID, Generation) is unique; inserting the
// pending record is the dispatch lock, and the storage unique constraint is
// the sole source of idempotency.
type ExecutionRecord struct {
	ID uuid.UUID

	TriggerID   uuid.UUID
	TriggerType string
	TenantID    uuid.UUID

	SnapshotID     uuid.UUID
	RootSnapshotID uuid.UUID
	Generation     int

	Status  ExecutionStatus
	Outcome *Outcome

	ExecutedAt  time.Time
	FinalizedAt *time.Time
}

// IdempotencyKey derives the stable key for one (trigger, snapshot,
// generation) tuple. Postgres enforces the tuple with a composite unique
// constraint; the in-memory store and analytics bucket on this digest.
func IdempotencyKey(triggerID, snapshotID uuid.UUID, generation int) string {
	data := fmt.Sprintf("%s:%s:%d", triggerID, snapshotID, generation)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
