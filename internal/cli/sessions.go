package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsHistory string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List conversation sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsHistory, "history", "", "print the full history of the given session")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	if sessionsHistory != "" {
		turns, err := app.conversations.History(sessionsHistory)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Println("no history")
			return nil
		}
		for _, turn := range turns {
			fmt.Printf("[%s] %s: %s\n", turn.Timestamp.Format("15:04:05"), turn.Role, turn.Text)
		}
		return nil
	}

	sessions, err := app.conversations.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTURNS\tSTARTED")
	for _, session := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\n",
			session.ID, len(session.Turns), session.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
