package models

// FieldType represents the input type of a form field.
type FieldType string

const (
	FieldTypeText     FieldType = "TEXT"
	FieldTypeTextarea FieldType = "TEXTAREA"
	FieldTypeNumber   FieldType = "NUMBER"
	FieldTypeEmail    FieldType = "EMAIL"
	FieldTypeDate     FieldType = "DATE"
	FieldTypeSelect   FieldType = "SELECT"
	FieldTypeRadio    FieldType = "RADIO"
	FieldTypeCheckbox FieldType = "CHECKBOX"
	FieldTypeFile     FieldType = "FILE"
)

// FormField describes one input of a step's form. Key must be unique within
// its step and is used as the map key in submitted form data.
type FormField struct {
	Label       string    `json:"label"                 validate:"required"`
	Key         string    `json:"field_key"             validate:"required"`
	Type        FieldType `json:"field_type"            validate:"required"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty"` // For SELECT, RADIO, CHECKBOX
	Pattern     string    `json:"validation_pattern,omitempty"`
	FieldOrder  int       `json:"field_order"`
}
