package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
)

var (
	flagStrictHeaders bool
	flagAtomic        bool
	flagDryRun        bool
	flagMaxRows       int
	flagActor         string
	flagOut           string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the CSV import template",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOutput(flagOut, core.WriteTemplate)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import survey responses from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		result, err := newService(pool).Import(cmd.Context(), core.Upload{
			FileName: filepath.Base(args[0]),
			Size:     info.Size(),
			Body:     f,
		}, core.ImportOptions{
			StrictHeaders: flagStrictHeaders,
			Atomic:        flagAtomic,
			DryRun:        flagDryRun,
			MaxRows:       flagMaxRows,
			Actor:         flagActor,
		})
		if err != nil {
			return err
		}

		if flagJSON {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			printImportResult(result)
		}
		if !result.Success {
			return errors.New("import failed")
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all completed responses as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := newService(pool)
		var n int
		err = withOutput(flagOut, func(w io.Writer) error {
			var err error
			n, err = svc.ExportResponses(cmd.Context(), w)
			return err
		})
		if err != nil {
			return fmt.Errorf("exporting responses: %w", err)
		}
		fmt.Fprintf(os.Stderr, "exported %d responses\n", n)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&flagStrictHeaders, "strict-headers", true, "Reject files with unknown columns")
	importCmd.Flags().BoolVar(&flagAtomic, "atomic", true, "Insert all rows or none")
	importCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Validate without saving")
	importCmd.Flags().IntVar(&flagMaxRows, "max-rows", 0, "Stop after this many data rows (default and ceiling: 5000)")
	importCmd.Flags().StringVar(&flagActor, "actor", "surveyctl", "Name recorded in import history")

	templateCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(templateCmd, importCmd, exportCmd)
}

// withOutput runs write against the named file, or stdout when name is empty.
func withOutput(name string, write func(io.Writer) error) error {
	if name == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printImportResult(r *core.ImportResult) {
	mode := "atomic"
	if !r.Atomic {
		mode = "per-row"
	}
	if r.DryRun {
		fmt.Printf("dry run (%s): %d rows, %d valid, %d failed\n", mode, r.Total, r.Valid, r.Failed)
	} else {
		fmt.Printf("import (%s): %d rows, %d inserted, %d failed\n", mode, r.Total, r.Inserted, r.Failed)
	}
	if r.RolledBack {
		fmt.Println("all rows rolled back")
	}
	for _, e := range r.Errors {
		fmt.Printf("  row %d: %s\n", e.Row, e.Message)
	}
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
