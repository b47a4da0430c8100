package importcertificatebatch

import "certificate-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"issuerAccount", "csv"},
		Properties: map[string]validation.Property{
			"issuerAccount": {
				Type:        "string",
				Description: "Account of the issuing organization",
				MinLength:   validation.Int(1),
				MaxLength:   validation.Int(128),
			},
			"csv": {
				Type:        "string",
				Description: "Result sheet in the export column layout, header first",
				MinLength:   validation.Int(1),
			},
		},
		AdditionalProperties: true,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"batchRunId":          {Type: "string"},
			"batchTotalRows":      {Type: "integer"},
			"batchSucceededCount": {Type: "integer"},
			"batchRows":           {Type: "array"},
			"batchOutcomeCounts":  {Type: "object"},
		},
		AdditionalProperties: false,
	}
}
