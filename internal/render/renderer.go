// Package render produces the certificate document that is stored and
// linked from the ledger.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"certificate-workers/internal/models"
)

// Document is every field printed on a certificate.
type Document struct {
	RequestID    uint64
	Subject      models.SubjectSnapshot
	Fields       models.TestFields
	Organization models.Organization
}

// Renderer turns a Document into bytes. Equal documents must render to
// equal bytes so that content hashes are reproducible.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

const certificateTemplate = `TEST RESULT CERTIFICATE
Certificate No.: {{ .RequestID }}

[Subject]
Name:          {{ .Subject.FullName | clean }}
Date of birth: {{ .Subject.BirthDate | clean }}
Gender:        {{ .Subject.Gender }}
Residence:     {{ .Subject.Residence | clean }}
Phone:         {{ .Subject.Phone | clean }}
Email:         {{ .Subject.Email | clean }}

[Test]
Sample ID:         {{ .Fields.SampleID | clean }}
Sample:            {{ .Fields.Sample | clean }}
Collection method: {{ .Fields.CollectionMethod | clean }}
Collection date:   {{ .Fields.CollectionDate | clean }}
Test method:       {{ .Fields.TestMethod | clean }}
Result:            {{ .Fields.Result }}
Result date:       {{ .Fields.ResultDate | clean }}

[Issued by]
Organization: {{ .Organization.Name | clean }}
{{- with .Organization.DelegateName }}
Delegate:     {{ clean . }}{{ end }}
{{- with .Organization.Address }}
Address:      {{ clean . }}{{ end }}
Phone:        {{ .Organization.Phone | clean }}
Email:        {{ .Organization.Email | clean }}
`

// clean keeps each value on its own line so fields cannot forge others.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TextRenderer renders a fixed plain-text layout.
type TextRenderer struct {
	tmpl *template.Template
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{
		tmpl: template.Must(template.New("certificate").
			Funcs(template.FuncMap{"clean": clean}).
			Option("missingkey=error").
			Parse(certificateTemplate)),
	}
}

func (r *TextRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render certificate %d: %w", doc.RequestID, err)
	}
	return buf.Bytes(), nil
}
