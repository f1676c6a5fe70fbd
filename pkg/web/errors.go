package web

import (
	"errors"

	"github.com/flowdesk/flowdesk/pkg/forms"
	"github.com/flowdesk/flowdesk/pkg/graph"
	"github.com/flowdesk/flowdesk/pkg/services"
	"github.com/flowdesk/flowdesk/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// formProblem extends the RFC 7807 payload with the list of form fields that
// failed validation so clients can highlight them.
type formProblem struct {
	*problems.Problem

	Fields []string `json:"fields"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func formValidationFailed(c fiber.Ctx, validationErr *forms.ValidationError) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("form_validation_failed").
		WithDetail(validationErr.Error())

	return c.Status(fiber.StatusBadRequest).JSON(formProblem{
		Problem: problem,
		Fields:         validationErr.Fields,
	})
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErr *forms.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return formValidationFailed(c, validationErr)

	case errors.Is(err, services.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	case errors.Is(err, services.ErrInstanceNotFound):
		return notFound(c, "instance not found")

	case errors.Is(err, workflow.ErrNoPublishedVersion):
		return conflict(c, "workflow_not_published", err.Error())

	case errors.Is(err, workflow.ErrStaleInstance):
		return conflict(c, "stale_submission", err.Error())

	case errors.Is(err, workflow.ErrInstanceFinished):
		return conflict(c, "instance_finished", err.Error())

	case errors.Is(err, graph.ErrNoMatchingTransition):
		return conflict(c, "no_matching_transition", err.Error())

	case errors.Is(err, workflow.ErrFormDataTooLarge):
		return badRequest(c, err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, "conflict", err.Error())

	default:
		return internalError(c, err)
	}
}
