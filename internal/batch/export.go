package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"certificate-workers/internal/ledger"
	"certificate-workers/internal/models"
)

// ExportPending writes the issuer's pending requests as a result sheet with
// the test columns left for the issuer to fill in. Sample, collection method
// and test method are prefilled from the organization's defaults. It returns
// the number of data lines written.
func ExportPending(ctx context.Context, l ledger.Ledger, issuerAccount string, w io.Writer) (int, error) {
	org, err := l.GetOrganization(ctx, issuerAccount)
	if err != nil {
		return 0, ledgerError(err)
	}
	pending, err := l.GetPendingRequests(ctx, issuerAccount)
	if err != nil {
		return 0, ledgerError(err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}
	for _, r := range pending {
		if err := cw.Write(pendingRecord(r, *org)); err != nil {
			return 0, fmt.Errorf("write request %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(pending), nil
}

func pendingRecord(r models.TestRequest, org models.Organization) []string {
	rec := make([]string, ColumnCount)
	rec[ColRequestID] = strconv.FormatUint(r.ID, 10)
	rec[ColSubjectAccount] = r.SubjectAccount
	rec[ColLastName] = r.Subject.LastName
	rec[ColFirstName] = r.Subject.FirstName
	rec[ColResidence] = r.Subject.Residence
	rec[ColBirthDate] = r.Subject.BirthDate
	rec[ColGender] = strconv.Itoa(int(r.Subject.Gender))
	rec[ColPhone] = r.Subject.Phone
	rec[ColEmail] = r.Subject.Email
	if r.RequestedAt > 0 {
		rec[ColRequestedAt] = time.Unix(r.RequestedAt, 0).UTC().Format(models.DateLayout)
	}
	rec[ColSampleID] = r.SampleID
	rec[ColSample] = org.SampleType
	rec[ColCollectionMethod] = org.CollectionMethod
	rec[ColCollectionDate] = r.CollectionDate
	rec[ColTestMethod] = org.TestMethod
	return rec
}
