package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studybuddy-ai/backend/internal/cli"
	"github.com/studybuddy-ai/backend/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "studybuddyd",
		Short: "StudyBuddy daemon",
		Long:  "StudyBuddy daemon for running the study-assistant API server and syncing Canvas courses",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.SyncCoursesCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
