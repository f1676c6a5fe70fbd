package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

var instanceSortColumns = map[string]string{
	"created_at":   "created_at",
	"completed_at": "completed_at",
}

// ListInstances returns paginated and filtered instances.
func (r *InstanceRepository) ListInstances(ctx context.Context, opts persistence.ListInstancesOptions) (*persistence.InstanceListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	sortColumn, ok := instanceSortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	where := "WHERE TRUE"
	args := make([]any, 0, 5)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.StartedBy != "" {
		args = append(args, opts.StartedBy)
		where += fmt.Sprintf(" AND started_by = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT
			id
		  , workflow_id
		  , current_step_id
		  , status
		  , form_data
		  , started_by
		  , created_at
		  , completed_at
		FROM workflow_instances
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, where, sortColumn, order, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.Instance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return &persistence.InstanceListResult{
		Instances:   instances,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(instances)) < totalCount,
	}, nil
}

// GetByID returns an instance by its ID, or (nil, nil) when absent.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , current_step_id
		  , status
		  , form_data
		  , started_by
		  , created_at
		  , completed_at
		FROM workflow_instances
		WHERE id = $1
	`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

// Save upserts an instance.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.Instance) error {
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}

	formDataJSON, err := json.Marshal(instance.FormData)
	if err != nil {
		return fmt.Errorf("failed to marshal form data for instance %s: %w", instance.ID, err)
	}

	query := `
		INSERT INTO workflow_instances (
			id, workflow_id, current_step_id, status, form_data,
			started_by, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			current_step_id = EXCLUDED.current_step_id
		  , status = EXCLUDED.status
		  , form_data = EXCLUDED.form_data
		  , completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowID,
		nullString(instance.CurrentStepID),
		string(instance.Status),
		formDataJSON,
		instance.StartedBy,
		instance.CreatedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func scanInstance(row scanner) (*models.Instance, error) {
	var (
		instance      models.Instance
		currentStepID sql.NullString
		startedBy     sql.NullString
		formDataJSON  []byte
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&currentStepID,
		&instance.Status,
		&formDataJSON,
		&startedBy,
		&instance.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.CurrentStepID = currentStepID.String
	instance.StartedBy = startedBy.String

	if completedAt.Valid {
		completedAtUTC := completedAt.Time.UTC()
		instance.CompletedAt = &completedAtUTC
	}

	if len(formDataJSON) > 0 {
		err = json.Unmarshal(formDataJSON, &instance.FormData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal form data for instance %s: %w", instance.ID, err)
		}
	}

	return &instance, nil
}

// nullString converts empty strings to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
