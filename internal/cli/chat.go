package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation over the uploaded documents",
	Long: `Start an interactive session. Each question is answered with document
context and the conversation so far. Type "exit" or press Ctrl-D to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session ID to resume (a new one is generated if omitted)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), true)
	if err != nil {
		return err
	}
	defer app.Close()

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Printf("session %s - type \"exit\" to leave\n", sessionID)

	// Replay existing history when resuming.
	if turns, err := app.conversations.History(sessionID); err == nil && len(turns) > 0 {
		fmt.Println()
		for _, turn := range turns {
			fmt.Printf("%s: %s\n", turn.Role, turn.Text)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		result, err := app.asker.Ask(cmd.Context(), sessionID, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", result.Answer)
		printSources(app, result.CitedDocumentIDs)
	}

	return scanner.Err()
}
