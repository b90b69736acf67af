// Command surveyctl runs maintenance tasks against the survey database:
// schema migration, CSV import and export, reports and admin accounts.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
