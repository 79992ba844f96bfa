package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearbalance/revcycle-pipeline/internal/watermark"
)

var (
	watermarkDB      string
	watermarkSource  string
	watermarkDataset string

	watermarksCmd = &cobra.Command{
		Use:   "watermarks",
		Short: "Show the load history for a dataset",
		Long:  "Print the append-only watermark audit log for one (source, dataset), newest first",
		Example: `  revcycle watermarks --db data/watermark.db --source hospital_a --dataset transactions`,
		RunE:  showWatermarks,
	}
)

func init() {
	watermarksCmd.Flags().StringVar(&watermarkDB, "db", "", "Path to the watermark database")
	watermarksCmd.Flags().StringVar(&watermarkSource, "source", "", "Source ID")
	watermarksCmd.Flags().StringVar(&watermarkDataset, "dataset", "", "Dataset name")
	watermarksCmd.MarkFlagRequired("db")
	watermarksCmd.MarkFlagRequired("source")
	watermarksCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(watermarksCmd)
}

func showWatermarks(cmd *cobra.Command, args []string) error {
	store, err := watermark.NewStore(watermarkDB)
	if err != nil {
		return fmt.Errorf("failed to open watermark store: %w", err)
	}
	defer store.Close()

	records, err := store.History(context.Background(), watermarkSource, watermarkDataset)
	if err != nil {
		return fmt.Errorf("failed to read watermark history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println(color.YellowString("No loads recorded for %s/%s", watermarkSource, watermarkDataset))
		return nil
	}

	title := color.New(color.FgCyan, color.Bold)
	title.Printf("Load history for %s/%s\n", watermarkSource, watermarkDataset)
	fmt.Printf("%-25s %-20s %s\n", "loaded_at", "last_loaded_value", "rows")
	for _, rec := range records {
		fmt.Printf("%-25s %-20s %d\n",
			rec.LoadedAt.Format("2006-01-02 15:04:05"), rec.LastLoadedValue, rec.RowsLoaded)
	}
	return nil
}
