package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:56rem;color:#1f2937}
table{border-collapse:collapse;width:100%}th,td{border-bottom:1px solid #e5e7eb;padding:.4rem;text-align:left}
fieldset{border:1px solid #d1d5db;padding:1rem;margin-bottom:1rem}label{display:block;margin:.5rem 0}`

// handleImportPage renders the admin upload page with recent import runs.
func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ImportHistory(r.Context(), 10)
	if err != nil {
		logging.FromContext(r.Context()).Warn("load import history", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := layout("Import survey responses", importPage(runs, s.cfg.Import.MaxFileSize, s.cfg.Import.MaxRows))
	if err := page.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render import page", "error", err)
	}
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title><style>%s</style></head><body><h1>%s</h1>`,
			templ.EscapeString(title), pageStyle, templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func importPage(runs []core.ImportRun, maxSize int64, maxRows int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<p><a href="/api/admin/import/template">Download the CSV template</a> | <a href="/api/admin/export/responses">Export responses</a></p>
<form method="post" action="/api/admin/import" enctype="multipart/form-data"><fieldset><legend>CSV file (up to %s)</legend>
<input type="file" name="csv_file" accept=".csv,text/csv" required>
<label>Header check <select name="strict_headers"><option value="true" selected>Reject unknown columns</option><option value="false">Ignore unknown columns</option></select></label>
<label>Mode <select name="atomic"><option value="true" selected>All or nothing</option><option value="false">Keep valid rows</option></select></label>
<label>Dry run <select name="dry_run"><option value="false" selected>No, save rows</option><option value="true">Yes, validate only</option></select></label>
<label>Row limit <input type="number" name="max_rows" min="1" max="%d" placeholder="%d"></label>
<button type="submit">Import</button></fieldset></form>`, templ.EscapeString(core.FormatBytes(maxSize)), maxRows, maxRows); err != nil {
			return err
		}
		return importHistoryTable(runs).Render(ctx, w)
	})
}

func importHistoryTable(runs []core.ImportRun) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(runs) == 0 {
			_, err := io.WriteString(w, `<p>No imports yet.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<h2>Recent imports</h2><table><thead><tr><th>When</th><th>File</th><th>By</th><th>Total</th><th>Inserted</th><th>Failed</th><th>Result</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, run := range runs {
			outcome := "ok"
			switch {
			case run.RolledBack:
				outcome = "rolled back"
			case run.Failed > 0:
				outcome = "partial"
			}
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>`,
				run.CreatedAt.Format("2006-01-02 15:04"),
				templ.EscapeString(run.FileName),
				templ.EscapeString(run.Actor),
				run.Total, run.Inserted, run.Failed, outcome); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
