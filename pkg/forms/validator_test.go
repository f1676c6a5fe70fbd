package forms

import (
	"testing"

	"github.com/flowdesk/flowdesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSubmission_RequiredFieldMissing(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
		{Label: "Note", Key: "note", Type: models.FieldTypeText},
	}

	err := ValidateSubmission(fields, map[string]string{"note": "hello"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"amount"}, verr.Fields)
}

func TestValidateSubmission_BlankCountsAsMissing(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
	}

	err := ValidateSubmission(fields, map[string]string{"amount": "   "})
	require.Error(t, err)
}

func TestValidateSubmission_OptionalFieldMayBeAbsent(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Note", Key: "note", Type: models.FieldTypeText},
	}

	require.NoError(t, ValidateSubmission(fields, map[string]string{}))
}

func TestValidateSubmission_TypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		field models.FormField
		value string
		valid bool
	}{
		{name: "number ok", field: models.FormField{Key: "n", Type: models.FieldTypeNumber}, value: "12.5", valid: true},
		{name: "number bad", field: models.FormField{Key: "n", Type: models.FieldTypeNumber}, value: "twelve", valid: false},
		{name: "email ok", field: models.FormField{Key: "e", Type: models.FieldTypeEmail}, value: "user@example.com", valid: true},
		{name: "email bad", field: models.FormField{Key: "e", Type: models.FieldTypeEmail}, value: "not-an-email", valid: false},
		{name: "date ok", field: models.FormField{Key: "d", Type: models.FieldTypeDate}, value: "2024-03-01", valid: true},
		{name: "date bad", field: models.FormField{Key: "d", Type: models.FieldTypeDate}, value: "03/01/2024", valid: false},
		{name: "select in options", field: models.FormField{Key: "s", Type: models.FieldTypeSelect, Options: []string{"low", "high"}}, value: "low", valid: true},
		{name: "select not in options", field: models.FormField{Key: "s", Type: models.FieldTypeSelect, Options: []string{"low", "high"}}, value: "medium", valid: false},
		{name: "radio in options", field: models.FormField{Key: "r", Type: models.FieldTypeRadio, Options: []string{"yes", "no"}}, value: "no", valid: true},
		{name: "checkbox bool", field: models.FormField{Key: "c", Type: models.FieldTypeCheckbox}, value: "true", valid: true},
		{name: "checkbox subset", field: models.FormField{Key: "c", Type: models.FieldTypeCheckbox, Options: []string{"a", "b"}}, value: "a,b", valid: true},
		{name: "checkbox outside options", field: models.FormField{Key: "c", Type: models.FieldTypeCheckbox, Options: []string{"a", "b"}}, value: "a,z", valid: false},
		{name: "text anything", field: models.FormField{Key: "t", Type: models.FieldTypeText}, value: "whatever", valid: true},
		{name: "file anything", field: models.FormField{Key: "f", Type: models.FieldTypeFile}, value: "receipt.pdf", valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := tt.field
			err := ValidateSubmission([]*models.FormField{&field}, map[string]string{field.Key: tt.value})

			if tt.valid {
				assert.NoError(t, err)
			} else {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, verr.Fields, field.Key)
			}
		})
	}
}

func TestValidateSubmission_Pattern(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Code", Key: "code", Type: models.FieldTypeText, Pattern: `^[A-Z]{3}-\d{4}$`},
	}

	require.NoError(t, ValidateSubmission(fields, map[string]string{"code": "ABC-1234"}))

	err := ValidateSubmission(fields, map[string]string{"code": "abc"})
	require.Error(t, err)
}

func TestValidateSubmission_CollectsAllOffendingFields(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Amount", Key: "amount", Type: models.FieldTypeNumber, Required: true},
		{Label: "Email", Key: "email", Type: models.FieldTypeEmail, Required: true},
	}

	err := ValidateSubmission(fields, map[string]string{"email": "nope"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"amount", "email"}, verr.Fields)
}

func TestValidateSubmission_UnknownKeysIgnored(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Note", Key: "note", Type: models.FieldTypeText},
	}

	// Accumulated data from earlier steps flows through later submissions.
	require.NoError(t, ValidateSubmission(fields, map[string]string{"earlier_step_field": "x"}))
}

func TestBuildContext_LabelAliases(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Expense Amount", Key: "field_a1", Type: models.FieldTypeNumber},
		{Label: "Status", Key: "field_b2", Type: models.FieldTypeText},
	}
	data := map[string]string{"field_a1": "1500", "field_b2": "PENDING"}

	context := BuildContext(data, fields)

	assert.Equal(t, "1500", context["field_a1"])
	assert.Equal(t, "1500", context["Expense_Amount"])
	assert.Equal(t, "PENDING", context["Status"])
}

func TestBuildContext_KeysTakePrecedenceOverLabels(t *testing.T) {
	fields := []*models.FormField{
		{Label: "amount", Key: "other", Type: models.FieldTypeNumber},
	}
	data := map[string]string{"amount": "1", "other": "2"}

	context := BuildContext(data, fields)

	// The label "amount" collides with an existing key and must not clobber it.
	assert.Equal(t, "1", context["amount"])
}

func TestBuildContext_NonIdentifierLabelSkipped(t *testing.T) {
	fields := []*models.FormField{
		{Label: "Total (USD)", Key: "total", Type: models.FieldTypeNumber},
	}

	context := BuildContext(map[string]string{"total": "9"}, fields)

	assert.Equal(t, "9", context["total"])
	assert.Len(t, context, 1)
}

func TestFieldKeysUnique(t *testing.T) {
	require.NoError(t, FieldKeysUnique([]*models.FormField{
		{Key: "a"}, {Key: "b"},
	}))

	err := FieldKeysUnique([]*models.FormField{
		{Key: "a"}, {Key: "a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field key")
}
