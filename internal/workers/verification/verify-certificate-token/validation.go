package verifycertificatetoken

import "certificate-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"token"},
		Properties: map[string]validation.Property{
			"token": {
				Type:        "string",
				Description: "Scanned verification token",
				MinLength:   validation.Int(1),
				MaxLength:   validation.Int(1024),
			},
		},
		AdditionalProperties: true,
	}
}
