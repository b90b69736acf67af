package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/database"
)

var (
	flagAdminEmail string
	flagAdminName  string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long: `Create an admin account. The password is read from
$SURVEYCTL_ADMIN_PASSWORD or, when unset, from the first line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("SURVEYCTL_ADMIN_PASSWORD")
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		pool, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		// Creating an account needs neither codes nor tokens.
		svc := auth.NewService(database.NewFromPool(pool), nil, nil)
		id, err := svc.CreateAdmin(cmd.Context(), flagAdminEmail, flagAdminName, password)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(map[string]string{"id": id, "email": flagAdminEmail})
		}
		fmt.Printf("created admin %s (%s)\n", flagAdminEmail, id)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&flagAdminEmail, "email", "", "Admin email address")
	createAdminCmd.Flags().StringVar(&flagAdminName, "name", "", "Display name")
	_ = createAdminCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(createAdminCmd)
}
