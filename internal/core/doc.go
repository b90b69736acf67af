// Package core provides the survey intake and import business logic.
//
// The package has no transport or storage code of its own. Persistence is
// reached through the store interfaces in types.go, implemented by
// internal/database against PostgreSQL and by in-memory stubs in tests, so
// the same Service backs the HTTP API, the surveyctl CLI and the tests.
//
// # Intake Paths
//
// Every response, however it arrives, passes the same section validators
// from internal/survey:
//
//   - [Service.SubmitSurvey]: a complete survey posted as JSON.
//   - The draft wizard: [Service.StartDraft], [Service.SaveStep],
//     [Service.RequestEmailCode], [Service.VerifyEmailCode] and
//     [Service.SubmitDraft].
//   - [Service.Import]: a CSV file of many responses.
//
// # CSV Import
//
// An import is admitted (extension, size, sniffed content type), its header
// row resolved to field keys, and each data row turned into a [RowResult].
// Atomic imports use one transaction and roll back on the first failure while
// still validating the remaining rows; non-atomic imports commit row by row.
// At most [Config.MaxConcurrentImports] imports run at once.
//
//	result, err := svc.Import(ctx, core.Upload{
//	    FileName: "responses.csv",
//	    Size:     size,
//	    Body:     f,
//	}, core.ImportOptions{StrictHeaders: true, Atomic: true})
//
// # Reports
//
// Reports are registered by [ReportType] at init time. [Service.RunReport]
// rejects unknown types with [ErrUnknownReport] before querying.
//
// # Maintenance
//
// [Service.StartSweeper] expires drafts and purges one-time codes and
// rate-limit buckets past their retention window.
package core
