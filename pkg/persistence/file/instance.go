package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/flowdesk/flowdesk/pkg/persistence"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	root string
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

// ListInstances returns paginated and filtered instances with in-memory operations.
func (ir *InstanceRepository) ListInstances(ctx context.Context, opts persistence.ListInstancesOptions) (*persistence.InstanceListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at":   true,
		"completed_at": true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	root := os.DirFS(path.Join(ir.root, "instances"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	all := make([]*models.Instance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instanceID := file[:len(file)-5]

		instance, err := ir.GetByID(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
		}

		if instance != nil {
			all = append(all, instance)
		}
	}

	filtered := make([]*models.Instance, 0, len(all))

	for _, instance := range all {
		if opts.WorkflowID != "" && instance.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.StartedBy != "" && instance.StartedBy != opts.StartedBy {
			continue
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, instance)
	}

	sortInstances(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.InstanceListResult{
			Instances:   make([]*models.Instance, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.InstanceListResult{
		Instances:   filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func sortInstances(instances []*models.Instance, sortBy, sortOrder string) {
	sort.Slice(instances, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "completed_at":
			// Unfinished instances sort before any completed one; two
			// unfinished instances fall back to creation order.
			left, right := instances[i].CompletedAt, instances[j].CompletedAt

			switch {
			case left == nil && right == nil:
				less = instances[i].CreatedAt.Before(instances[j].CreatedAt)
			case left == nil:
				less = true
			case right == nil:
				less = false
			default:
				less = left.Before(*right)
			}
		default:
			less = instances[i].CreatedAt.Before(instances[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves an instance by its ID from the file system.
func (ir *InstanceRepository) GetByID(_ context.Context, instanceID string) (*models.Instance, error) {
	filePath := filepath.Clean(path.Join(ir.root, "instances", instanceID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	var instance models.Instance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", instanceID, err)
	}

	return &instance, nil
}

// Save saves an instance to the file system.
func (ir *InstanceRepository) Save(_ context.Context, instance *models.Instance) error {
	err := os.MkdirAll(path.Join(ir.root, "instances"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	filePath := path.Join(ir.root, "instances", instance.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}
