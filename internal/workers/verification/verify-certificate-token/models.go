package verifycertificatetoken

import "certificate-workers/internal/models"

type Input struct {
	Token string `json:"token"`
}

type Output struct {
	Certificate      models.Certificate `json:"certificate"`
	DocumentURL      string             `json:"documentUrl"`
	Tier             string             `json:"tier"`
	Expired          bool               `json:"expired"`
	TokenIssuedAt    int64              `json:"tokenIssuedAt"`
	OrganizationName string             `json:"organizationName,omitempty"`
}
