package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"twstock-portfolio/internal/logging"
)

// addQuoteCommands adds price resolution commands.
func addQuoteCommands(rootCmd *cobra.Command, app *App) {
	var refresh bool

	quoteCmd := &cobra.Command{
		Use:   "quote <code>",
		Short: "Resolve the current quote for an instrument",
		Args:  cobra.ExactArgs(1),
		Example: `  twstock quote 2330
  twstock quote 2330 --refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Resolver == nil {
				return fmt.Errorf("store unavailable")
			}

			q, err := app.Resolver.Resolve(cmd.Context(), args[0], refresh)
			if err != nil {
				return err
			}
			logging.LogQuote(app.Logger, q.Code, q.Price, q.ChangePercent, q.IsStale)

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(q)
			}

			staleTag := ""
			if q.IsStale {
				staleTag = output.ColoredString(ColorYellow, " [stale]")
			}
			output.Printf("%s  %.2f%s\n", q.Code, q.Price, staleTag)
			output.Printf("Change:     %s (%s)\n", output.FormatPnL(q.Change), output.FormatPercent(q.ChangePercent))
			output.Printf("Prev close: %.2f\n", q.PreviousClose)
			if q.BestAsk > 0 {
				output.Printf("Best ask:   %.2f\n", q.BestAsk)
			}
			output.Dim("Resolved at %s", q.ResolvedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	quoteCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the fresh-cache fast path")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Price cache management",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear [code]",
		Short: "Drop cached quotes (all, or one instrument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Resolver == nil {
				return fmt.Errorf("store unavailable")
			}
			output := NewOutput(cmd)
			if len(args) == 1 {
				if err := app.Resolver.Invalidate(cmd.Context(), args[0]); err != nil {
					return err
				}
				output.Success("✓ Cache cleared for %s", args[0])
				return nil
			}
			if err := app.Resolver.InvalidateAll(cmd.Context()); err != nil {
				return err
			}
			output.Success("✓ Cache cleared")
			return nil
		},
	})

	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(cacheCmd)
}
