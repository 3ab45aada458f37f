package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question grounded in the uploaded documents",
	Long: `Ask a one-shot question. The answer is grounded in the most relevant
document chunks and the session's conversation history.

Examples:
  docchat ask "what color is the mat?"
  docchat ask -s research "summarize the findings"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session ID (a new one is generated if omitted)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), true)
	if err != nil {
		return err
	}
	defer app.Close()

	sessionID := askSession
	if sessionID == "" {
		sessionID = uuid.NewString()
		fmt.Printf("session: %s\n\n", sessionID)
	}

	query := strings.Join(args, " ")

	result, err := app.asker.Ask(cmd.Context(), sessionID, query)
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	printSources(app, result.CitedDocumentIDs)
	return nil
}

func printSources(app *app, documentIDs []string) {
	if len(documentIDs) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, id := range documentIDs {
		name := id
		if doc, err := app.store.GetDocument(id); err == nil {
			name = fmt.Sprintf("%s (%s)", doc.Filename, id)
		}
		fmt.Printf("  - %s\n", name)
	}
}
