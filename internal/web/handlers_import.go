package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// multipartSlack covers the multipart envelope and the option fields.
const multipartSlack = 64 << 10

const defaultHistoryLimit = 20

// handleImport runs the CSV import pipeline over the uploaded csv_file.
// A result is always returned as JSON: 200 when the import succeeded and
// 422 when it did not.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartSlack)

	up := core.Upload{}
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			up.Err = fmt.Errorf("file exceeds the %d byte limit", maxSize)
		} else {
			up.Err = err
		}
	} else {
		file, header, err := r.FormFile("csv_file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			// admission reports the missing file
		case err != nil:
			up.Err = err
		default:
			defer file.Close()
			up.FileName = header.Filename
			up.Size = header.Size
			up.Body = file
		}
	}

	maxRows, err := formInt(r, "max_rows")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := core.ImportOptions{
		StrictHeaders: formBool(r, "strict_headers", true),
		Atomic:        formBool(r, "atomic", true),
		DryRun:        formBool(r, "dry_run", false),
		MaxRows:       maxRows,
	}

	ctx := WithRequestMetadata(r.Context(), r)
	opts.Actor = core.GetActorFromContext(ctx)

	result, err := s.service.Import(ctx, up, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// formBool reads a checkbox-style option; unrecognized values use def.
func formBool(r *http.Request, name string, def bool) bool {
	if r.MultipartForm == nil {
		return def
	}
	vals := r.MultipartForm.Value[name]
	if len(vals) == 0 {
		return def
	}
	switch {
	case survey.IsTruthy(vals[0]), vals[0] == "on":
		return true
	case survey.IsFalsy(vals[0]), vals[0] == "off":
		return false
	}
	return def
}

// formInt reads an optional positive integer option. A missing or blank
// field yields 0.
func formInt(r *http.Request, name string) (int, error) {
	if r.MultipartForm == nil {
		return 0, nil
	}
	vals := r.MultipartForm.Value[name]
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", errInvalidOption, name, vals[0])
	}
	return n, nil
}

// handleDownloadTemplate serves the blank import template.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	setCSVHeaders(w, core.TemplateFileName)
	if err := core.WriteTemplate(w); err != nil {
		logging.FromContext(r.Context()).Error("write template", "error", err)
	}
}

// handleExportResponses streams every completed response. Headers are sent
// before the first row, so a failure midway can only be logged.
func (s *Server) handleExportResponses(w http.ResponseWriter, r *http.Request) {
	setCSVHeaders(w, core.ExportFileName(time.Now()))

	ctx := WithRequestMetadata(r.Context(), r)
	n, err := s.service.ExportResponses(ctx, w)
	log := logging.WithFields(ctx, "rows", n, "actor", core.GetActorFromContext(ctx))
	if err != nil {
		log.Error("export responses", "error", err)
		return
	}
	log.Info("responses exported")
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
}

// handleImportHistory lists recent import runs, newest first.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := s.service.ImportHistory(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.ImportRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": runs})
}
