package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearbalance/revcycle-pipeline/internal/gold"
)

var (
	projectDB   string
	projectAsOf string

	projectCmd = &cobra.Command{
		Use:   "project",
		Short: "Rebuild the gold dimensional model from the silver store",
		Long:  "Project current, non-quarantined silver records into dimension and fact tables",
		Example: `  revcycle project --db data/warehouse.duckdb
  revcycle project --db data/warehouse.duckdb --as-of 2024-03-15`,
		RunE: runProjection,
	}
)

func init() {
	projectCmd.Flags().StringVar(&projectDB, "db", "", "Path to the DuckDB database holding silver and gold tables")
	projectCmd.Flags().StringVar(&projectAsOf, "as-of", "", "Aging as-of date (YYYY-MM-DD, default today)")
	projectCmd.MarkFlagRequired("db")
	rootCmd.AddCommand(projectCmd)
}

func resolveAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	asOf, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date %q: %w", value, err)
	}
	return asOf, nil
}

func runProjection(cmd *cobra.Command, args []string) error {
	asOf, err := resolveAsOf(projectAsOf)
	if err != nil {
		return err
	}

	projector, err := gold.NewProjector(projectDB)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer projector.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	summary, err := projector.Run(ctx, asOf)
	if err != nil {
		return fmt.Errorf("projection failed: %w", err)
	}

	fmt.Println(color.GreenString("Projection complete as of %s", asOf.Format("2006-01-02")))
	fmt.Printf("  dim_patient:       %d row(s)\n", summary.Patients)
	fmt.Printf("  dim_provider:      %d row(s)\n", summary.Providers)
	fmt.Printf("  fact_transaction:  %d row(s)\n", summary.Facts)
	if summary.ExcludedFacts > 0 {
		fmt.Println(color.YellowString("  excluded facts:    %d (missing dimension rows)", summary.ExcludedFacts))
	}
	return nil
}
