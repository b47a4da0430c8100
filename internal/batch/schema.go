// Package batch imports result sheets exported by issuers and certifies
// every eligible row, and exports the pending requests those sheets start
// from.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/models"
)

// Column positions of a result sheet. Export writes the same layout.
const (
	ColRequestID = iota
	ColSubjectAccount
	ColLastName
	ColFirstName
	ColResidence
	ColBirthDate
	ColGender
	ColPhone
	ColEmail
	ColRequestedAt
	ColSampleID
	ColSample
	ColCollectionMethod
	ColCollectionDate
	ColTestMethod
	ColResult
	ColResultDate

	ColumnCount
)

// Header is the first line of every sheet. Import discards it unread.
var Header = []string{
	"requestId", "subjectAccount", "lastName", "firstName", "residence", "birthDate", "gender",
	"phone", "email", "requestedAt", "sampleId", "sample", "collectionMethod", "collectionDate",
	"testMethod", "result", "resultDate",
}

var requiredColumns = []struct {
	col  int
	name string
}{
	{ColRequestID, "requestId"},
	{ColSampleID, "sampleId"},
	{ColSample, "sample"},
	{ColCollectionMethod, "collectionMethod"},
	{ColCollectionDate, "collectionDate"},
	{ColTestMethod, "testMethod"},
	{ColResult, "result"},
	{ColResultDate, "resultDate"},
}

// Row is one decoded data line of a sheet.
type Row struct {
	RequestID      uint64
	SubjectAccount string
	Email          string
	Fields         models.TestFields
}

// matchKey identifies the pending request a row refers to.
type matchKey struct {
	id      uint64
	account string
	email   string
}

func (r Row) key() matchKey {
	return matchKey{id: r.RequestID, account: r.SubjectAccount, email: r.Email}
}

func requestKey(r models.TestRequest) matchKey {
	return matchKey{id: r.ID, account: r.SubjectAccount, email: r.Subject.Email}
}

// RecordError explains why a line could not be decoded into a Row.
type RecordError struct {
	Line   int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// DecodeRecord turns one CSV record into a Row by fixed column position.
func DecodeRecord(line int, record []string) (Row, error) {
	if len(record) != ColumnCount {
		return Row{}, &RecordError{Line: line, Reason: fmt.Sprintf("expected %d columns, got %d", ColumnCount, len(record))}
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	for _, c := range requiredColumns {
		if record[c.col] == "" {
			return Row{}, &RecordError{Line: line, Reason: c.name + " is empty"}
		}
	}

	id, err := strconv.ParseUint(record[ColRequestID], 10, 64)
	if err != nil || id == 0 {
		return Row{}, &RecordError{Line: line, Reason: fmt.Sprintf("requestId %q is not a positive integer", record[ColRequestID])}
	}
	result, err := models.ParseTestResult(record[ColResult])
	if err != nil {
		return Row{}, &RecordError{Line: line, Reason: err.Error()}
	}
	for _, col := range []int{ColCollectionDate, ColResultDate} {
		if _, err := time.Parse(models.DateLayout, record[col]); err != nil {
			return Row{}, &RecordError{Line: line, Reason: fmt.Sprintf("%s %q is not a %s date", Header[col], record[col], models.DateLayout)}
		}
	}

	return Row{
		RequestID:      id,
		SubjectAccount: record[ColSubjectAccount],
		Email:          record[ColEmail],
		Fields: models.TestFields{
			SampleID:         record[ColSampleID],
			Sample:           record[ColSample],
			CollectionMethod: record[ColCollectionMethod],
			CollectionDate:   record[ColCollectionDate],
			TestMethod:       record[ColTestMethod],
			Result:           result,
			ResultDate:       record[ColResultDate],
		},
	}, nil
}

// parsedLine is a data line with either a Row or the reason it was rejected.
type parsedLine struct {
	line int
	row  Row
	err  error
}

// readSheet reads every data line of payload. Malformed lines are returned
// with their error; only an unreadable payload fails the whole call.
func readSheet(payload io.Reader) ([]parsedLine, error) {
	r := csv.NewReader(payload)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewBatchInputError("sheet is empty")
		}
		var perr *csv.ParseError
		if !errors.As(err, &perr) {
			return nil, apperrors.NewBatchInputError(err.Error())
		}
	}

	var lines []parsedLine
	for n := 1; ; n++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, apperrors.NewBatchInputError(err.Error())
			}
			lines = append(lines, parsedLine{line: n, err: &RecordError{Line: n, Reason: perr.Err.Error()}})
			continue
		}
		row, err := DecodeRecord(n, record)
		lines = append(lines, parsedLine{line: n, row: row, err: err})
	}
}
