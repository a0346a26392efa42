package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "twstock-portfolio/internal/errors"
	"twstock-portfolio/internal/models"
	"twstock-portfolio/internal/store"
	"twstock-portfolio/pkg/utils"
)

// addTransactionCommands adds transaction management commands.
func addTransactionCommands(rootCmd *cobra.Command, app *App) {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Transaction management",
		Long:  "Record, list and delete stock transactions.",
	}

	txCmd.AddCommand(newTxAddCmd(app))
	txCmd.AddCommand(newTxListCmd(app))
	txCmd.AddCommand(newTxDeleteCmd(app))

	rootCmd.AddCommand(txCmd)
}

func newTxAddCmd(app *App) *cobra.Command {
	var (
		code    string
		name    string
		side    string
		qty     int64
		price   float64
		fee     float64
		tax     float64
		dateStr string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Example: `  twstock tx add --code 2330 --name 台積電 --side BUY --qty 1000 --price 500 --fee 20
  twstock tx add --code 0050 --side SELL --qty 500 --price 150.5 --fee 10 --tax 45 --date 2024-03-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			txnSide := models.TransactionSide(side)
			if txnSide != models.SideBuy && txnSide != models.SideSell {
				return apperrors.NewValidationError("side", side, "must be BUY or SELL")
			}
			if qty <= 0 {
				return apperrors.NewValidationError("qty", qty, "must be positive")
			}
			if price < 0 || fee < 0 || tax < 0 {
				return apperrors.NewValidationError("price/fee/tax", price, "must be non-negative")
			}

			timestamp := time.Now()
			if dateStr != "" {
				t, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", dateStr, err)
				}
				timestamp = t
			}

			txn := &models.Transaction{
				ID:        uuid.NewString(),
				Code:      code,
				Name:      name,
				Side:      txnSide,
				Quantity:  qty,
				Price:     price,
				Fee:       fee,
				Tax:       tax,
				Timestamp: timestamp,
			}
			if err := app.Store.InsertTransaction(cmd.Context(), txn); err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(txn)
			}
			output.Success("✓ Recorded %s %s x%s @ %.2f (total %s)",
				side, code, utils.FormatQuantity(qty), price, utils.FormatTWD(txn.TotalAmount()))
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "instrument code (required)")
	cmd.Flags().StringVar(&name, "name", "", "instrument name")
	cmd.Flags().StringVar(&side, "side", "BUY", "transaction side: BUY or SELL")
	cmd.Flags().Int64Var(&qty, "qty", 0, "quantity in shares (required)")
	cmd.Flags().Float64Var(&price, "price", 0, "price per share")
	cmd.Flags().Float64Var(&fee, "fee", 0, "brokerage fee")
	cmd.Flags().Float64Var(&tax, "tax", 0, "transaction tax")
	cmd.Flags().StringVar(&dateStr, "date", "", "transaction date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("code")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func newTxListCmd(app *App) *cobra.Command {
	var (
		code    string
		side    string
		fromStr string
		toStr   string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Example: `  twstock tx list
  twstock tx list --code 2330 --side BUY
  twstock tx list --from 2024-01-01 --to 2024-07-01 --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			filter := store.TransactionFilter{
				Code:  code,
				Side:  models.TransactionSide(side),
				Limit: limit,
			}
			if fromStr != "" {
				t, err := time.ParseInLocation("2006-01-02", fromStr, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --from date %q: %w", fromStr, err)
				}
				filter.StartDate = t
			}
			if toStr != "" {
				t, err := time.ParseInLocation("2006-01-02", toStr, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --to date %q: %w", toStr, err)
				}
				// Exclusive bound: include the whole --to day.
				filter.EndDate = t.AddDate(0, 0, 1)
			}

			txns, err := app.Store.ListTransactionsFiltered(cmd.Context(), filter)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(txns)
			}

			if len(txns) == 0 {
				output.Dim("No transactions recorded")
				return nil
			}

			table := NewTable(output, "DATE", "CODE", "NAME", "SIDE", "QTY", "PRICE", "FEE", "TAX", "TOTAL", "ID")
			for i := range txns {
				t := &txns[i]
				table.AddRow(
					t.Timestamp.Format(app.Config.UI.DateFormat),
					t.Code,
					t.Name,
					string(t.Side),
					utils.FormatQuantity(t.Quantity),
					fmt.Sprintf("%.2f", t.Price),
					fmt.Sprintf("%.0f", t.Fee),
					fmt.Sprintf("%.0f", t.Tax),
					utils.FormatTWD(t.TotalAmount()),
					t.ID[:8],
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "filter by instrument code")
	cmd.Flags().StringVar(&side, "side", "", "filter by side: BUY or SELL")
	cmd.Flags().StringVar(&fromStr, "from", "", "earliest transaction date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "latest transaction date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = no limit)")
	return cmd
}

func newTxDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and its attributed dividends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}
			if err := app.Store.DeleteTransaction(cmd.Context(), args[0]); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ Transaction deleted")
			return nil
		},
	}
}
