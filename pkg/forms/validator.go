// Package forms validates submitted form data against a step's field
// definitions. Each field type maps to a pure check function; failures are
// collected per field key and returned in one ValidationError.
package forms

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError reports the field keys that failed validation. The instance
// is left untouched when this is returned.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "form validation failed for fields: " + strings.Join(e.Fields, ", ")
}

// checkFunc reports whether value conforms to the field's type.
type checkFunc func(field *models.FormField, value string) bool

var checks = map[models.FieldType]checkFunc{
	models.FieldTypeText:     acceptAny,
	models.FieldTypeTextarea: acceptAny,
	models.FieldTypeFile:     acceptAny,
	models.FieldTypeNumber:   checkNumber,
	models.FieldTypeEmail:    checkEmail,
	models.FieldTypeDate:     checkDate,
	models.FieldTypeSelect:   checkOption,
	models.FieldTypeRadio:    checkOption,
	models.FieldTypeCheckbox: checkCheckbox,
}

// ValidateSubmission checks data against fields: required fields must be
// present and non-empty, present values must conform to their field type, and
// values must match the field's validation pattern when one is set. Fields in
// data with no matching definition are ignored (other steps' accumulated keys
// pass through submissions unharmed).
func ValidateSubmission(fields []*models.FormField, data map[string]string) error {
	var offending []string

	for _, field := range fields {
		value, present := data[field.Key]
		if !present || strings.TrimSpace(value) == "" {
			if field.Required {
				offending = append(offending, field.Key)
			}

			continue
		}

		check, ok := checks[field.Type]
		if !ok {
			check = acceptAny
		}

		if !check(field, value) {
			offending = append(offending, field.Key)

			continue
		}

		if field.Pattern != "" && !matchesPattern(field.Pattern, value) {
			offending = append(offending, field.Key)
		}
	}

	if len(offending) > 0 {
		return &ValidationError{Fields: offending}
	}

	return nil
}

func acceptAny(_ *models.FormField, _ string) bool {
	return true
}

func checkNumber(_ *models.FormField, value string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)

	return err == nil
}

func checkEmail(_ *models.FormField, value string) bool {
	return validate.Var(value, "email") == nil
}

func checkDate(_ *models.FormField, value string) bool {
	_, err := time.Parse(dateLayout, strings.TrimSpace(value))

	return err == nil
}

func checkOption(field *models.FormField, value string) bool {
	if len(field.Options) == 0 {
		return false
	}

	return slices.Contains(field.Options, value)
}

// checkCheckbox accepts a boolean when the field declares no options, or a
// comma-separated subset of the declared options.
func checkCheckbox(field *models.FormField, value string) bool {
	if len(field.Options) == 0 {
		_, err := strconv.ParseBool(value)

		return err == nil
	}

	for _, part := range strings.Split(value, ",") {
		if !slices.Contains(field.Options, strings.TrimSpace(part)) {
			return false
		}
	}

	return true
}

func matchesPattern(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		// An uncompilable author-supplied pattern must not reject user input.
		return true
	}

	return re.MatchString(value)
}

// BuildContext assembles the rule-evaluation context from accumulated form
// data, adding each field's label (made identifier-safe) as an alias for its
// value so authors can reference "Amount" fields as `Amount`. Field keys take
// precedence over label aliases on collision.
func BuildContext(data map[string]string, fields []*models.FormField) map[string]string {
	context := make(map[string]string, len(data))

	for key, value := range data {
		context[key] = value
	}

	for _, field := range fields {
		value, ok := data[field.Key]
		if !ok {
			continue
		}

		alias, ok := asIdentifier(field.Label)
		if !ok {
			continue
		}

		if _, exists := context[alias]; !exists {
			context[alias] = value
		}
	}

	return context
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func asIdentifier(label string) (string, bool) {
	candidate := strings.Join(strings.Fields(strings.TrimSpace(label)), "_")
	if !identifierPattern.MatchString(candidate) {
		return "", false
	}

	return candidate, true
}

// FieldKeysUnique verifies field keys are unique within a step; duplicate keys
// would silently overwrite each other in submitted data.
func FieldKeysUnique(fields []*models.FormField) error {
	seen := make(map[string]bool, len(fields))

	for _, field := range fields {
		if seen[field.Key] {
			return fmt.Errorf("duplicate field key: %s", field.Key)
		}

		seen[field.Key] = true
	}

	return nil
}
