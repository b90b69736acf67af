package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// TemplateFileName is the suggested download name of the import template.
const TemplateFileName = "eteeap_survey_import_template.csv"

// ExportHeaders returns the canonical column labels in catalog order.
func ExportHeaders() []string {
	fields := survey.Fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Label
	}
	return headers
}

// FormatRecord renders r as export cells in catalog order. Enum and yes/no
// codes are written as their labels and lists are joined with "; ".
func FormatRecord(r survey.Record) []string {
	fields := survey.Fields()
	row := make([]string, len(fields))
	for i, f := range fields {
		switch f.Kind {
		case survey.KindMulti:
			row[i] = survey.JoinMulti(r.List(f.Key))
		case survey.KindEnum, survey.KindBool:
			row[i] = f.OptionLabel(r.Get(f.Key))
		default:
			row[i] = r.Get(f.Key)
		}
	}
	return row
}

// WriteTemplate writes the import template: a UTF-8 BOM, the header row and
// one example row that passes validation.
func WriteTemplate(w io.Writer) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeaders()); err != nil {
		return err
	}
	if err := cw.Write(FormatRecord(survey.ExampleRecord())); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName returns the download name of a data export taken at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("eteeap_survey_responses_%s.csv", t.Format("20060102_150405"))
}

// ExportResponses streams every completed response as CSV. The columns are
// the template columns followed by Response ID and Completed At, so an
// export can be imported again.
func (s *Service) ExportResponses(ctx context.Context, w io.Writer) (int, error) {
	if _, err := w.Write(utf8BOM); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append(ExportHeaders(), ColumnResponseID, ColumnCompletedAt)); err != nil {
		return 0, err
	}

	n := 0
	err := s.stores.Responses.EachResponse(ctx, func(r StoredResponse) error {
		row := append(FormatRecord(r.Record), r.ID, r.CompletedAt.UTC().Format(time.RFC3339))
		if err := cw.Write(row); err != nil {
			return err
		}
		n++
		if n%500 == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("export responses: %w", err)
	}
	cw.Flush()
	return n, cw.Error()
}
