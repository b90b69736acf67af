package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
)

var flagOfficeType string

var reportCmd = &cobra.Command{
	Use:   "report <type>",
	Short: "Print a survey report",
	Long:  "Print a survey report. Run with no arguments to list report types.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, d := range core.Reports() {
				fmt.Fprintf(tw, "%s\t%s\n", d.Type, d.Title)
			}
			return tw.Flush()
		}

		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := newService(pool).RunReport(cmd.Context(), core.ReportType(args[0]), core.ReportFilter{OfficeType: flagOfficeType})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(report)
		}

		fmt.Printf("%s (%d responses)\n", report.Title, report.Total)
		if o := report.Overview; o != nil {
			fmt.Printf("sessions: %d, consented: %d, completion rate: %.1f%%\n", o.Sessions, o.ConsentedSessions, o.CompletionRate)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, row := range report.Rows {
			fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t\n", row.Label, row.Count, row.Percent)
		}
		return tw.Flush()
	},
}

func init() {
	reportCmd.Flags().StringVar(&flagOfficeType, "office-type", "", "Only count responses from this office type")
	rootCmd.AddCommand(reportCmd)
}
