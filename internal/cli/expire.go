package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire overdue approval requests",
	Long:  "Rejects every pending approval whose TTL has elapsed. Run it from a scheduler; wenko keeps no timers of its own.",
	Run:   runExpire,
}

func runExpire(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime(false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	expired, err := rt.orc.ExpireDue(time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(expired) == 0 {
		fmt.Println("Nothing to expire.")
		return
	}
	for _, req := range expired {
		fmt.Printf("Expired %s (%s in conversation %s)\n", req.ID, req.Tool, req.ConversationID)
	}
}
