package issuecertificate

import "certificate-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"requestId", "issuerAccount", "sampleId", "sample", "collectionMethod", "collectionDate", "testMethod", "result", "resultDate"},
		Properties: map[string]validation.Property{
			"requestId": {
				Type:        "integer",
				Description: "Ledger id of the test request to certify",
				Minimum:     validation.Float(1),
			},
			"issuerAccount": {
				Type:        "string",
				Description: "Account of the issuing organization",
				MinLength:   validation.Int(1),
				MaxLength:   validation.Int(128),
			},
			"sampleId":         {Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(128)},
			"sample":           {Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(128)},
			"collectionMethod": {Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(128)},
			"collectionDate": {
				Type:        "string",
				Description: "Sample collection date, yyyy/mm/dd",
				Pattern:     `^\d{4}/\d{2}/\d{2}$`,
			},
			"testMethod": {Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(128)},
			"result": {
				Type:        "string",
				Description: "Test result as written on the result sheet",
				MinLength:   validation.Int(1),
			},
			"resultDate": {
				Type:        "string",
				Description: "Result date, yyyy/mm/dd",
				Pattern:     `^\d{4}/\d{2}/\d{2}$`,
			},
		},
		// process instances carry unrelated variables
		AdditionalProperties: true,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"certificateId":      {Type: "integer"},
			"documentHash":       {Type: "string"},
			"issuedAt":           {Type: "integer"},
			"expireAt":           {Type: "integer"},
			"verificationToken":  {Type: "string"},
			"notificationId":     {Type: "string"},
			"notificationQueued": {Type: "boolean"},
		},
		AdditionalProperties: false,
	}
}
