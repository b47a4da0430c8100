package importcertificatebatch

import "certificate-workers/internal/batch"

type Input struct {
	IssuerAccount string `json:"issuerAccount"`
	CSV           string `json:"csv"`
}

type Output struct {
	RunID          string             `json:"runId"`
	TotalRowsSeen  int                `json:"totalRowsSeen"`
	SucceededCount int                `json:"succeededCount"`
	Rows           []batch.RowOutcome `json:"rows"`
}

// Counts tallies row outcomes by status.
func (o *Output) Counts() map[string]int {
	counts := make(map[string]int, 5)
	for _, r := range o.Rows {
		counts[string(r.Status)]++
	}
	return counts
}
