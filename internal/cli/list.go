package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docchat/internal/domain"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.store.ListDocuments()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("no documents uploaded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tCHUNKS\tUPLOADED")
	for _, doc := range docs {
		status := string(doc.Status)
		if doc.Status == domain.StatusFailed && doc.Error != "" {
			status = fmt.Sprintf("failed (%s)", doc.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			doc.ID, doc.Filename, status, len(doc.ChunkIDs),
			doc.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
