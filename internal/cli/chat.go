package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daijinru/wenko/internal/input"
	"github.com/daijinru/wenko/internal/orchestrator"
	"github.com/daijinru/wenko/internal/suspend"
)

var (
	chatMessage        string
	chatConversationID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to wenko in the terminal",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message and exit")
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "cli:default", "Conversation ID")
}

func runChat(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime(true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	if chatMessage != "" {
		step(ctx, rt, scanner, chatMessage)
		return
	}

	printHeader("💬 wenko chat")
	fmt.Println("Type a message, or /quit to leave.")

	for {
		fmt.Print(color.GreenString("you> "))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}
		step(ctx, rt, scanner, line)
	}
}

// step runs one turn and, when the core suspends, asks for the
// approval right here in the terminal.
func step(ctx context.Context, rt *runtime, scanner *bufio.Scanner, text string) {
	out, err := rt.orc.Step(ctx, chatConversationID, input.Raw{Kind: input.KindText, Text: text})
	if err != nil {
		if errors.Is(err, orchestrator.ErrConversationBusy) {
			fmt.Println(color.YellowString("wenko is waiting on an approval. Use 'wenko resume' or answer below."))
		}
		fmt.Printf("Error: %v\n", err)
		return
	}

	switch out.Kind {
	case orchestrator.OutcomeReply:
		fmt.Println(color.CyanString("wenko> ") + out.Reply)
	case orchestrator.OutcomeSuspended:
		promptApproval(ctx, rt, scanner, out.Request)
	}
}

func promptApproval(ctx context.Context, rt *runtime, scanner *bufio.Scanner, req *suspend.Request) {
	fmt.Println(color.YellowString("wenko wants to run %s (%s).", req.Tool, req.Reason))
	fmt.Printf("Request %s expires at %s.\n", req.ID, req.ExpiresAt().Format("15:04:05"))
	fmt.Print(color.GreenString("approve? [y/N] "))

	answer := "n"
	if scanner.Scan() {
		answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
	approved := answer == "y" || answer == "yes"

	out, err := rt.orc.Resume(ctx, req.ConversationID, req.ID, approved, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(color.CyanString("wenko> ") + out.Reply)
}
