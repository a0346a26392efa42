package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"twstock-portfolio/pkg/utils"
)

// addPortfolioCommands adds portfolio summary commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	var noDividends bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio summary",
		Long: `Summarize all holdings with live prices.

Prices come from the TWSE intraday feed, the FinMind historical feed,
or the local cache, in that order. Instruments whose price cannot be
resolved by any tier are omitted from the summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Aggregator == nil {
				return fmt.Errorf("store unavailable")
			}

			includeDividends := app.Config.Portfolio.IncludeDividends && !noDividends
			summary, err := app.Aggregator.Summarize(cmd.Context(), includeDividends)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(summary)
			}

			output.Printf("Market %s\n\n", output.MarketStatus(utils.GetMarketStatus()))

			if len(summary.Holdings) == 0 {
				output.Dim("No holdings")
				return nil
			}

			table := NewTable(output, "CODE", "NAME", "QTY", "AVG COST", "PRICE", "VALUE", "P&L", "P&L%", "TODAY%", "WEIGHT%", "DIV")
			for i := range summary.Holdings {
				h := &summary.Holdings[i]

				priceCell := fmt.Sprintf("%.2f", h.CurrentPrice)
				if h.IsUnpriced {
					priceCell += " (cost)"
				} else if h.IsStale {
					priceCell += " (stale)"
				}

				plPctCell := output.FormatPercent(h.ProfitLossPercent)
				if h.IsZeroCost {
					plPctCell = output.ColoredString(ColorYellow, "zero-cost")
				}

				table.AddRow(
					h.Code,
					h.Name,
					utils.FormatQuantity(h.Quantity),
					fmt.Sprintf("%.2f", h.AverageCost),
					priceCell,
					utils.FormatTWD(h.CurrentValue),
					output.FormatPnL(h.ProfitLoss),
					plPctCell,
					output.FormatPercent(h.TodayChangePct),
					fmt.Sprintf("%.1f", h.PositionRatio),
					utils.FormatTWD(h.TotalDividends),
				)
			}
			table.Render()

			output.Println()
			output.Printf("Total assets:   %s\n", utils.FormatTWD(summary.TotalAssets))
			output.Printf("Today's P&L:    %s (%s)\n",
				output.FormatPnL(summary.TodayProfitLoss), output.FormatPercent(summary.TodayPLPercent))
			if summary.IsZeroCost {
				output.Printf("Total P&L:      %s %s\n",
					output.FormatPnL(summary.TotalProfitLoss),
					output.ColoredString(ColorYellow, "(position fully repaid by dividends)"))
			} else {
				output.Printf("Total P&L:      %s (%s)\n",
					output.FormatPnL(summary.TotalProfitLoss), output.FormatPercent(summary.TotalPLPercent))
			}
			if summary.IncludesDividends {
				output.Dim("P&L includes accumulated dividends (adjusted cost %s)",
					utils.FormatTWD(summary.TotalAdjustedCost))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDividends, "no-dividends", false, "exclude dividends from P&L")
	rootCmd.AddCommand(cmd)
}
