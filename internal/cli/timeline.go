package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daijinru/wenko/internal/timeline"
)

var (
	timelineConversationID string
	timelineHuman          bool
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show what wenko has been doing",
	Run:   runTimeline,
}

func init() {
	timelineCmd.Flags().StringVarP(&timelineConversationID, "conversation", "c", "", "Filter by conversation (default: all)")
	timelineCmd.Flags().BoolVar(&timelineHuman, "human", false, "Render plain-language narratives instead of raw records")
}

func runTimeline(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime(false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	recs, err := rt.timeline.Timeline(timelineConversationID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("No activity yet.")
		return
	}

	for _, rec := range recs {
		if timelineHuman {
			nar := timeline.Humanize(rec)
			line := nar.Summary
			if nar.NeedsAttention {
				line = color.YellowString(line)
			}
			if nar.Irreversible {
				line += " (cannot be undone)"
			}
			fmt.Printf("%s  %s\n", rec.Timestamp.Format("15:04:05"), line)
			continue
		}
		fmt.Printf("%s  %-8s  %s -> %s  [%s]  %s\n",
			rec.Timestamp.Format("15:04:05"), rec.ExecutionID[:8],
			rec.FromStatus, rec.ToStatus, rec.Trigger, rec.ActionSummary)
	}
}
