package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daijinru/wenko/internal/suspend"
)

var (
	resumeApprove bool
	resumeDeny    bool
	resumeData    string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <conversation> <request>",
	Short: "Answer a pending approval request",
	Args:  cobra.ExactArgs(2),
	Run:   runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeApprove, "approve", false, "Approve the pending step")
	resumeCmd.Flags().BoolVar(&resumeDeny, "deny", false, "Deny the pending step")
	resumeCmd.Flags().StringVar(&resumeData, "data", "", "Optional JSON object merged into the tool arguments")
}

func runResume(cmd *cobra.Command, args []string) {
	if resumeApprove == resumeDeny {
		fmt.Println("Error: pass exactly one of --approve or --deny")
		os.Exit(1)
	}

	var answer map[string]any
	if resumeData != "" {
		if err := json.Unmarshal([]byte(resumeData), &answer); err != nil {
			fmt.Printf("Error: --data is not valid JSON: %v\n", err)
			os.Exit(1)
		}
	}

	rt, err := buildRuntime(resumeApprove)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	out, err := rt.orc.Resume(context.Background(), args[0], args[1], resumeApprove, answer)
	if err != nil {
		if errors.Is(err, suspend.ErrStaleResume) {
			fmt.Println("That request is no longer pending. Check 'wenko timeline' for what happened to it.")
			os.Exit(1)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(color.CyanString("wenko> ") + out.Reply)
}
