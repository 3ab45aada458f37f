package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its indexed chunks",
	Long: `Delete a document. Its vectors are removed from the index first, then
its chunks and record; after deletion no search can return its content.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	if err := app.ingestor.Delete(id); err != nil {
		return err
	}

	fmt.Printf("deleted %s\n", id)
	return nil
}
