package models

import "time"

// SubjectSnapshot is the personal data a subject attached to a request.
type SubjectSnapshot struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	BirthDate string `json:"birthDate"`
	Gender    Gender `json:"gender"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Residence string `json:"residence"`
}

// FullName renders "Last First", the order used on certificates.
func (s SubjectSnapshot) FullName() string {
	switch {
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	default:
		return s.LastName + " " + s.FirstName
	}
}

// TestRequest is a subject's request to be tested by an issuer.
// IssuedAt is zero while pending and set once, by the ledger, at mint time.
type TestRequest struct {
	ID             uint64          `json:"id"`
	SubjectAccount string          `json:"subjectAccount"`
	IssuerAccount  string          `json:"issuerAccount"`
	Subject        SubjectSnapshot `json:"subject"`
	SampleID       string          `json:"sampleId"`
	CollectionDate string          `json:"collectionDate"`
	RequestedAt    int64           `json:"requestedAt"`
	IssuedAt       int64           `json:"issuedAt"`
}

func (r TestRequest) Pending() bool {
	return r.IssuedAt == 0
}

// Organization is an issuer or business profile registered on the ledger.
type Organization struct {
	Account          string `json:"account"`
	Role             Role   `json:"role"`
	Name             string `json:"name"`
	DelegateName     string `json:"delegateName"`
	Address          string `json:"address"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	SampleType       string `json:"sampleType"`
	CollectionMethod string `json:"collectionMethod"`
	TestMethod       string `json:"testMethod"`
}

// Usable reports whether the profile carries the contact data certificates print.
func (o Organization) Usable() bool {
	return o.Name != "" && o.Phone != "" && o.Email != ""
}

// TestFields are the result values an issuer records for a request.
type TestFields struct {
	SampleID         string     `json:"sampleId"`
	Sample           string     `json:"sample"`
	CollectionMethod string     `json:"collectionMethod"`
	CollectionDate   string     `json:"collectionDate"`
	TestMethod       string     `json:"testMethod"`
	Result           TestResult `json:"result"`
	ResultDate       string     `json:"resultDate"`
}

// MintRequest is the single ledger mutation of an issuance.
type MintRequest struct {
	RequestID     uint64     `json:"requestId"`
	IssuerAccount string     `json:"issuerAccount"`
	Fields        TestFields `json:"fields"`
	DocumentHash  string     `json:"documentHash"`
}

// Certificate is the immutable ledger record minted for a negative result.
type Certificate struct {
	ID                  uint64     `json:"id"`
	SampleID            string     `json:"sampleId"`
	Sample              string     `json:"sample"`
	CollectionMethod    string     `json:"collectionMethod"`
	CollectionDate      string     `json:"collectionDate"`
	TestMethod          string     `json:"testMethod"`
	Result              TestResult `json:"result"`
	ResultDate          string     `json:"resultDate"`
	DocumentHash        string     `json:"documentHash"`
	OrganizationAccount string     `json:"organizationAccount"`
	IssuedAt            int64      `json:"issuedAt"`
	ExpireAt            int64      `json:"expireAt"`
}

func (c Certificate) IssuedTime() time.Time {
	return time.Unix(c.IssuedAt, 0).UTC()
}

func (c Certificate) ExpireTime() time.Time {
	return time.Unix(c.ExpireAt, 0).UTC()
}

// NewCertificate builds the record a ledger stores for m at issuedAt.
func NewCertificate(m MintRequest, issuedAt time.Time, validity time.Duration) Certificate {
	return Certificate{
		ID:                  m.RequestID,
		SampleID:            m.Fields.SampleID,
		Sample:              m.Fields.Sample,
		CollectionMethod:    m.Fields.CollectionMethod,
		CollectionDate:      m.Fields.CollectionDate,
		TestMethod:          m.Fields.TestMethod,
		Result:              m.Fields.Result,
		ResultDate:          m.Fields.ResultDate,
		DocumentHash:        m.DocumentHash,
		OrganizationAccount: m.IssuerAccount,
		IssuedAt:            issuedAt.Unix(),
		ExpireAt:            issuedAt.Add(validity).Unix(),
	}
}
