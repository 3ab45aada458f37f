package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docchat/internal/adapter/fs"
	"docchat/internal/domain"
)

var uploadDir bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload and ingest documents",
	Long: `Upload documents into the index. Each file is extracted, chunked,
embedded, and becomes searchable once fully ingested.

Examples:
  docchat upload notes.txt manual.md   # Ingest specific files
  docchat upload --dir ./docs          # Ingest a directory tree`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadDir, "dir", false, "treat arguments as directories and ingest matching files")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	app, err := newApp(GetConfig(), GetRootDir(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	paths := args
	if uploadDir {
		paths, err = expandDirs(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no matching files found")
		}
	}

	failed := 0
	for _, path := range paths {
		if err := uploadOne(cmd, app, path); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			failed++
		}
	}

	fmt.Printf("\n%d ingested, %d failed\n", len(paths)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
	}
	return nil
}

func uploadOne(cmd *cobra.Command, app *app, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if max := app.cfg.Upload.MaxFileBytes; max > 0 && info.Size() > max {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", domain.ErrInvalidArgument, info.Size(), max)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(filepath.Base(path)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	app.ingestor.Progress = func(done, total int) {
		bar.ChangeMax(total)
		bar.Set(done)
	}
	defer func() { app.ingestor.Progress = nil }()

	doc, err := app.ingestor.IngestFile(cmd.Context(), filepath.Base(path), data)
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s (%s, %d chunks)\n", doc.Filename, doc.ID, len(doc.ChunkIDs))
	return nil
}

func expandDirs(dirs []string) ([]string, error) {
	cfg := GetConfig()
	walker := fs.NewWalker(cfg.Upload.Includes, cfg.Upload.Excludes)

	var paths []string
	for _, dir := range dirs {
		files, err := walker.Walk(dir)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			paths = append(paths, file.Path)
		}
	}
	return paths, nil
}
