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
	"github.com/clearbalance/revcycle-pipeline/internal/kpi"
)

var (
	kpiDB    string
	kpiStart string
	kpiEnd   string
	kpiOut   string

	kpiCmd = &cobra.Command{
		Use:   "kpi",
		Short: "Compute revenue-cycle KPIs over a reporting window",
		Long:  "Compute AR aging totals, days in AR, and net collection rates from the fact table",
		Example: `  revcycle kpi --db data/warehouse.duckdb --start 2024-03-01 --end 2024-03-31
  revcycle kpi --db data/warehouse.duckdb --start 2024-03-01 --end 2024-03-31 --out kpi.xlsx`,
		RunE: runKPI,
	}
)

func init() {
	kpiCmd.Flags().StringVar(&kpiDB, "db", "", "Path to the DuckDB database holding the fact table")
	kpiCmd.Flags().StringVar(&kpiStart, "start", "", "Window start date (YYYY-MM-DD)")
	kpiCmd.Flags().StringVar(&kpiEnd, "end", "", "Window end date (YYYY-MM-DD)")
	kpiCmd.Flags().StringVar(&kpiOut, "out", "", "Optional Excel workbook to write the report to")
	kpiCmd.MarkFlagRequired("db")
	kpiCmd.MarkFlagRequired("start")
	kpiCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(kpiCmd)
}

func parseWindow(start, end string) (kpi.Window, error) {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return kpi.Window{}, fmt.Errorf("invalid --start date %q: %w", start, err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return kpi.Window{}, fmt.Errorf("invalid --end date %q: %w", end, err)
	}
	if to.Before(from) {
		return kpi.Window{}, fmt.Errorf("--end %s precedes --start %s", end, start)
	}
	return kpi.Window{Start: from, End: to}, nil
}

func runKPI(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(kpiStart, kpiEnd)
	if err != nil {
		return err
	}

	projector, err := gold.NewProjector(kpiDB)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer projector.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	facts, err := projector.Facts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read facts: %w", err)
	}

	report, err := kpi.BuildReport(facts, window)
	if err != nil {
		return fmt.Errorf("KPI computation failed: %w", err)
	}

	printReport(report)

	if kpiOut != "" {
		if err := kpi.ExportExcel(report, kpiOut); err != nil {
			return fmt.Errorf("failed to export report: %w", err)
		}
		fmt.Println(color.GreenString("Report written to %s", kpiOut))
	}
	return nil
}

func printReport(report kpi.Report) {
	title := color.New(color.FgCyan, color.Bold)
	title.Printf("KPIs for %s .. %s\n",
		report.Window.Start.Format("2006-01-02"), report.Window.End.Format("2006-01-02"))

	fmt.Println("AR aging:")
	for _, bucket := range []string{"0-30", "31-60", "61-90", "90+"} {
		fmt.Printf("  %-6s %s\n", bucket, report.AgingTotals[bucket].StringFixed(2))
	}

	if report.DaysInARDefined {
		fmt.Printf("Days in AR: %s\n", report.DaysInAR.StringFixed(1))
	} else {
		fmt.Println(color.YellowString("Days in AR: undefined (no payments in window)"))
	}

	if report.RatesByProvider != nil {
		fmt.Println("Net collection rate by provider:")
		for provider, rate := range report.RatesByProvider {
			fmt.Printf("  %-12s %s\n", provider, rate.StringFixed(4))
		}
	}
	if report.RatesByDepartment != nil {
		fmt.Println("Net collection rate by department:")
		for department, rate := range report.RatesByDepartment {
			fmt.Printf("  %-12s %s\n", department, rate.StringFixed(4))
		}
	}
}
