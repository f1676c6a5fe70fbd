package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed workflow_schema.json
var workflowSchemaJSON string

// Importer accepts workflow definitions exported as JSON documents and
// creates them as drafts after schema validation.
type Importer struct {
	workflows *Workflow
	schema    *gojsonschema.Schema
}

// NewImporter creates a new workflow importer.
func NewImporter(workflows *Workflow) (*Importer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow schema: %w", err)
	}

	return &Importer{workflows: workflows, schema: schema}, nil
}

// ImportWorkflow validates document against the workflow JSON schema and
// creates it as a new draft. The document's id, status, and timestamps are
// discarded; the import always produces a fresh draft.
func (i *Importer) ImportWorkflow(ctx context.Context, document []byte) (*models.Workflow, error) {
	result, err := i.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportDocument, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, NewValidationError(
			"ImportWorkflow",
			"SCHEMA_VALIDATION_FAILED",
			strings.Join(details, "; "),
			ErrInvalidImportDocument,
		)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportDocument, err)
	}

	return i.workflows.Create(ctx, &workflow)
}
