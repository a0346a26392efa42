package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "twstock-portfolio/internal/errors"
	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/models"
	"twstock-portfolio/pkg/utils"
)

// addDividendCommands adds dividend reconciliation commands.
func addDividendCommands(rootCmd *cobra.Command, app *App) {
	divCmd := &cobra.Command{
		Use:   "dividend",
		Short: "Dividend discovery and history",
	}

	divCmd.AddCommand(newDividendSyncCmd(app))
	divCmd.AddCommand(newDividendListCmd(app))
	divCmd.AddCommand(newDividendStatusCmd(app))

	rootCmd.AddCommand(divCmd)
}

func newDividendSyncCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync [code]",
		Short: "Discover and attribute dividends",
		Long: `Query the dividend feed for each held instrument (or a single one)
and attribute ex-dividend events to the qualifying purchases.

Instruments checked successfully within the last day are skipped
unless --force is given; instruments whose last check failed with a
transport error are always retried.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Reconciler == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx := cmd.Context()
			output := NewOutput(cmd)

			codes := args
			if len(codes) == 0 {
				txns, err := app.Store.ListTransactions(ctx)
				if err != nil {
					return err
				}
				seen := map[string]bool{}
				for _, t := range txns {
					if !seen[t.Code] {
						seen[t.Code] = true
						codes = append(codes, t.Code)
					}
				}
			}
			if len(codes) == 0 {
				output.Dim("No instruments to check")
				return nil
			}

			total := 0
			for _, code := range codes {
				if !force && !app.Reconciler.ShouldReconcile(ctx, code) {
					output.Dim("%s: recently checked, skipping", code)
					continue
				}
				inserted, err := app.Reconciler.Reconcile(ctx, code)
				if err != nil {
					if apperrors.IsSourceError(err) {
						output.Error("%s: feed unavailable, will retry on next sync: %v", code, err)
					} else {
						output.Error("%s: %v", code, err)
					}
					continue
				}
				outcome := string(models.ReconcileSuccess)
				if rec, recErr := app.Store.GetDividendRecord(ctx, code); recErr == nil && rec != nil {
					outcome = string(rec.Outcome)
				}
				logging.LogReconcile(app.Logger, code, inserted, outcome)
				if inserted > 0 {
					output.Success("%s: %d new dividend event(s)", code, inserted)
				} else {
					output.Dim("%s: no new dividends", code)
				}
				total += inserted
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"inserted": total})
			}
			output.Printf("\n%d new dividend event(s)\n", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore the daily recheck gate")
	return cmd
}

func newDividendListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [code]",
		Short: "List attributed dividend events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx := cmd.Context()
			var (
				events []models.DividendEvent
				err    error
			)
			if len(args) == 1 {
				events, err = app.Store.ListDividendsByCode(ctx, args[0])
			} else {
				events, err = app.Store.ListDividends(ctx)
			}
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(events)
			}

			if len(events) == 0 {
				output.Dim("No dividend events recorded")
				return nil
			}

			table := NewTable(output, "EX-DATE", "CODE", "TYPE", "PER UNIT", "QTY", "AMOUNT")
			var total float64
			for i := range events {
				ev := &events[i]
				table.AddRow(
					ev.ExDate.Format("2006-01-02"),
					ev.Code,
					string(ev.Type),
					fmt.Sprintf("%.4f", ev.AmountPerUnit),
					utils.FormatQuantity(ev.Quantity),
					utils.FormatTWD(ev.TotalAmount),
				)
				total += ev.TotalAmount
			}
			table.Render()
			output.Printf("\nTotal cash dividends: %s\n", utils.FormatTWD(total))
			return nil
		},
	}
}

func newDividendStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <code>",
		Short: "Show the last reconciliation outcome for an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			rec, err := app.Store.GetDividendRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if rec == nil {
				if output.IsJSON() {
					return output.JSON(nil)
				}
				output.Dim("%s: never checked", args[0])
				return nil
			}
			if output.IsJSON() {
				return output.JSON(rec)
			}
			output.Printf("Last checked: %s\n", rec.CalculatedAt.Format("2006-01-02 15:04:05"))
			output.Printf("Outcome:      %s\n", rec.Outcome)
			output.Printf("Inserted:     %d\n", rec.InsertedCount)
			return nil
		},
	}
}
