// Package postgres persists the execution log and trigger definitions.
//
// The executions table carries a unique constraint on
// (trigger_id, snapshot_id, generation); it is the final idempotency guard
// under concurrent dispatchers. Finalization is a single atomic UPDATE
// guarded on non-terminal status so a dispatcher and the sweeper can never
// both rewrite a record.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/dispatch"
	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertExecution inserts a pending execution record.
// Returns dispatch.ErrDuplicateExecution if the idempotency tuple
// (trigger_id, snapshot_id, generation) already exists.
func (s *Store) InsertExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		rec.ID,
		rec.TriggerID,
		rec.TriggerType,
		rec.TenantID,
		rec.SnapshotID,
		rec.RootSnapshotID,
		rec.Generation,
		string(rec.Status),
		rec.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return dispatch.ErrDuplicateExecution
		}
		return err
	}
	return nil
}

// FinalizeExecution moves an execution to a terminal status.
// Returns dispatch.ErrAlreadyFinalized if the record is already terminal.
// The guard lives in the UPDATE's WHERE clause: Postgres locks the row
// before evaluating it, so concurrent finalizers serialize.
func (s *Store) FinalizeExecution(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, outcome domain.Outcome, finalizedAt time.Time) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	result, err := s.db.ExecContext(ctx, queryFinalizeExecution, string(status), outcomeJSON, finalizedAt, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the record does not exist or it is already terminal.
		var currentStatus string
		err := s.db.QueryRowContext(ctx, queryGetExecutionStatus, id).Scan(&currentStatus)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return dispatch.ErrAlreadyFinalized
	}

	return nil
}

// HasExecution reports whether the idempotency tuple has a record in any
// status, pending included.
func (s *Store) HasExecution(ctx context.Context, triggerID, snapshotID uuid.UUID, generation int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, queryHasExecution, triggerID, snapshotID, generation).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ListExecutions returns a tenant's executions, newest first. A non-nil
// snapshotID narrows to one snapshot.
func (s *Store) ListExecutions(ctx context.Context, tenantID, snapshotID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	var rows *sql.Rows
	var err error
	if snapshotID == uuid.Nil {
		rows, err = s.db.QueryContext(ctx, queryListExecutions, tenantID, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, queryListExecutionsBySnapshot, tenantID, snapshotID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ListByRoot returns every execution in a trigger chain, ordered by
// generation then trigger type.
func (s *Store) ListByRoot(ctx context.Context, rootSnapshotID uuid.UUID) ([]domain.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListByRoot, rootSnapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetStalePendingExecutions returns pending records executed before the
// cutoff, oldest first, capped at maxResults.
func (s *Store) GetStalePendingExecutions(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryGetStalePendingExecutions, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

func scanExecutions(rows *sql.Rows) ([]domain.ExecutionRecord, error) {
	var result []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var status string
		var outcomeJSON []byte
		var finalizedAt sql.NullTime

		err := rows.Scan(
			&rec.ID,
			&rec.TriggerID,
			&rec.TriggerType,
			&rec.TenantID,
			&rec.SnapshotID,
			&rec.RootSnapshotID,
			&rec.Generation,
			&status,
			&outcomeJSON,
			&rec.ExecutedAt,
			&finalizedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.Status = domain.ExecutionStatus(status)
		if len(outcomeJSON) > 0 {
			var outcome domain.Outcome
			if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
				return nil, fmt.Errorf("unmarshal outcome for %s: %w", rec.ID, err)
			}
			rec.Outcome = &outcome
		}
		if finalizedAt.Valid {
			at := finalizedAt.Time
			rec.FinalizedAt = &at
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListDefinitions returns all trigger definitions, global and
// tenant-scoped.
func (s *Store) ListDefinitions(ctx context.Context) ([]domain.TriggerDefinition, error) {
	rows, err := s.db.QueryContext(ctx, queryListDefinitions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TriggerDefinition
	for rows.Next() {
		var def domain.TriggerDefinition
		var conditionJSON, paramsJSON []byte

		err := rows.Scan(
			&def.ID,
			&def.Type,
			&def.TenantID,
			&def.Priority,
			&def.Enabled,
			&conditionJSON,
			&def.TargetModule,
			&paramsJSON,
			&def.CreatedAt,
			&def.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(conditionJSON, &def.Condition); err != nil {
			return nil, fmt.Errorf("unmarshal condition for %s: %w", def.Type, err)
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &def.ActionParameters); err != nil {
				return nil, fmt.Errorf("unmarshal action parameters for %s: %w", def.Type, err)
			}
		}
		result = append(result, def)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpsertDefinition inserts or updates a definition, keyed by its
// (trigger_type, tenant_id) scope.
func (s *Store) UpsertDefinition(ctx context.Context, def domain.TriggerDefinition) error {
	conditionJSON, err := json.Marshal(def.Condition)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}
	paramsJSON, err := json.Marshal(def.ActionParameters)
	if err != nil {
		return fmt.Errorf("marshal action parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryUpsertDefinition,
		def.ID,
		def.Type,
		def.TenantID,
		def.Priority,
		def.Enabled,
		conditionJSON,
		def.TargetModule,
		paramsJSON,
		def.CreatedAt,
		def.UpdatedAt,
	)
	return err
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL unique violation error code is 23505.
	errStr := err.Error()
	return contains(errStr, "23505") || contains(errStr, "unique constraint") || contains(errStr, "duplicate key")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

var _ dispatch.Store = (*Store)(nil)
