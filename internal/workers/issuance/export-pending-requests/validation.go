package exportpendingrequests

import "certificate-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"issuerAccount"},
		Properties: map[string]validation.Property{
			"issuerAccount": {
				Type:        "string",
				Description: "Account of the issuing organization",
				MinLength:   validation.Int(1),
				MaxLength:   validation.Int(128),
			},
		},
		AdditionalProperties: true,
	}
}
