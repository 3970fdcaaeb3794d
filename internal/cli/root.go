package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/ThreadClaw/ThreadClaw/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _____ _                        _  ____ _\n" +
		" |_   _| |__  _ __ ___  __ _  __| |/ ___| | __ ___      __\n" +
		"   | | | '_ \\| '__/ _ \\/ _` |/ _` | |   | |/ _` \\ \\ /\\ / /\n" +
		"   | | | | | | | |  __/ (_| | (_| | |___| | (_| |\\ V  V /\n" +
		"   |_| |_| |_|_|  \\___|\\__,_|\\__,_|\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "threadclaw",
	Short: "ThreadClaw - Slack bridge for coding assistants",
	Long:  color.CyanString(logo) + "\nBridges a stream-json coding assistant into Slack threads.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
