package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agriaid/cmd"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agriaid",
		Short: "AI-assisted crop disease diagnosis",
		Long: `agriaid helps growers identify a likely crop disease from the crop name,
its age and an optional photo, then produces a three-part action plan.

Run it as an HTTP API for web and mobile clients (serve) or interactively
in the terminal (wizard).`,
		SilenceUsage: true,
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		cmd.NewServeCmd(),
		cmd.NewWizardCmd(),
		cmd.NewLocateCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agriaid version %s\n", version)
		},
	}
}
