package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the fitbit-mcp application
var rootCmd = &cobra.Command{
	Use:   "fitbit-mcp",
	Short: "MCP server exposing Fitbit health data",
	Long: `fitbit-mcp is a Model Context Protocol server that gives AI assistants
read-only access to one Fitbit account: profile, weight, sleep, heart rate,
activity and nutrition.

It can run as:
  - A streamable HTTP server with API key authentication (default)
  - A stdio server launched by a local MCP client`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fitbit-mcp version %s\n" .Version}}`)

	// Without a subcommand the HTTP server starts.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading configuration (missing file is ignored)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
