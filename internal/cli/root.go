package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/daijinru/wenko/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		" __      _____ _ __ | | _____\n" +
		" \\ \\ /\\ / / _ \\ '_ \\| |/ / _ \\\n" +
		"  \\ V  V /  __/ | | |   < (_) |\n" +
		"   \\_/\\_/ \\___|_| |_|_|\\_\\___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "wenko",
	Short: "wenko - desktop conversational companion",
	Long:  color.CyanString(logo) + "\nThe cognitive core of wenko, a desktop companion that asks before it breaks things.",
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
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(expireCmd)
}
