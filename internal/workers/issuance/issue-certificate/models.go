package issuecertificate

import "certificate-workers/internal/models"

type Input struct {
	RequestID     uint64            `json:"requestId"`
	IssuerAccount string            `json:"issuerAccount"`
	Fields        models.TestFields `json:"fields"`
}

type Output struct {
	CertificateID      uint64 `json:"certificateId"`
	DocumentHash       string `json:"documentHash"`
	IssuedAt           int64  `json:"issuedAt"`
	ExpireAt           int64  `json:"expireAt"`
	VerificationToken  string `json:"verificationToken,omitempty"`
	NotificationID     string `json:"notificationId,omitempty"`
	NotificationQueued bool   `json:"notificationQueued"`
}
