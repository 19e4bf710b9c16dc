package postgres

const queryInsertExecution = `
INSERT INTO executions (id, trigger_id, trigger_type, tenant_id, snapshot_id, root_snapshot_id, generation, status, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryFinalizeExecution = `
UPDATE executions
SET status = $1, outcome = $2, finalized_at = $3
WHERE id = $4
  AND status NOT IN ('succeeded', 'failed')
`

const queryGetExecutionStatus = `
SELECT status FROM executions WHERE id = $1
`

const queryHasExecution = `
SELECT EXISTS (
    SELECT 1 FROM executions
    WHERE trigger_id = $1 AND snapshot_id = $2 AND generation = $3
)
`

const queryListExecutions = `
SELECT id, trigger_id, trigger_type, tenant_id, snapshot_id, root_snapshot_id, generation, status, outcome, executed_at, finalized_at
FROM executions
WHERE tenant_id = $1
ORDER BY executed_at DESC, id
LIMIT $2 OFFSET $3
`

const queryListExecutionsBySnapshot = `
SELECT id, trigger_id, trigger_type, tenant_id, snapshot_id, root_snapshot_id, generation, status, outcome, executed_at, finalized_at
FROM executions
WHERE tenant_id = $1 AND snapshot_id = $2
ORDER BY executed_at DESC, id
LIMIT $3 OFFSET $4
`

const queryListByRoot = `
SELECT id, trigger_id, trigger_type, tenant_id, snapshot_id, root_snapshot_id, generation, status, outcome, executed_at, finalized_at
FROM executions
WHERE root_snapshot_id = $1
ORDER BY generation ASC, trigger_type ASC
`

const queryGetStalePendingExecutions = `
SELECT id, trigger_id, trigger_type, tenant_id, snapshot_id, root_snapshot_id, generation, status, outcome, executed_at, finalized_at
FROM executions
WHERE status = 'pending'
  AND executed_at < $1
ORDER BY executed_at ASC
LIMIT $2
`

const queryListDefinitions = `
SELECT id, trigger_type, tenant_id, priority, enabled, condition, target_module, action_parameters, created_at, updated_at
FROM trigger_definitions
ORDER BY trigger_type, tenant_id
`

const queryUpsertDefinition = `
INSERT INTO trigger_definitions (id, trigger_type, tenant_id, priority, enabled, condition, target_module, action_parameters, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (trigger_type, tenant_id) DO UPDATE
SET priority = EXCLUDED.priority,
    enabled = EXCLUDED.enabled,
    condition = EXCLUDED.condition,
    target_module = EXCLUDED.target_module,
    action_parameters = EXCLUDED.action_parameters,
    updated_at = EXCLUDED.updated_at
`
