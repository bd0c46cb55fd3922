package cmd

import (
	"fmt"
	"strconv"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/grovetools/remit/tui/components/table"
	"github.com/grovetools/remit/tui/theme"
	"github.com/spf13/cobra"
)

// NewBanksCmd returns the bank table commands. Without a subcommand it lists.
func NewBanksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banks",
		Short: "List the supported banks",
		Args:  cobra.NoArgs,
		RunE:  runBanksList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the supported banks",
		Args:  cobra.NoArgs,
		RunE:  runBanksList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <bank-id>",
		Short: "Show the selector table of a bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			bank, err := e.banks.Get(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), bank)
		},
	})
	return cmd
}

func runBanksList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	list := e.banks.List()
	if cli.GetOptions(cmd).JSONOutput {
		return writeJSON(cmd.OutOrStdout(), list)
	}

	rows := make([][]string, 0, len(list))
	for _, bank := range list {
		rows = append(rows, []string{
			theme.BankAccent(bank.PrimaryColor).Render(bank.ID),
			bank.Name,
			navigation(bank),
			otpSelector(bank),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), table.Render([]string{"ID", "NAME", "TRANSFERS", "OTP FIELD"}, rows))
	return nil
}

func navigation(bank banks.Bank) string {
	if bank.TransferMenuIsURL() {
		return "url"
	}
	return "menu"
}

func otpSelector(bank banks.Bank) string {
	if bank.Selectors.OTPInputField == "" {
		return "auto"
	}
	return bank.Selectors.OTPInputField
}

// feeOutput is the --json shape of 'remit fee'.
type feeOutput struct {
	Amount float64 `json:"amount"`
	Fee    float64 `json:"fee"`
	Total  float64 `json:"total"`
}

// NewFeeCmd returns the command that prints the fee charged on an amount.
func NewFeeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee <amount>",
		Short: "Print the fee charged on an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil || amount <= 0 {
				return errors.InvalidRequest(fmt.Sprintf("invalid amount %q", args[0]))
			}
			out := feeOutput{Amount: amount, Fee: transfer.Fee(amount)}
			out.Total = out.Amount + out.Fee

			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Field("Amount", strconv.FormatFloat(out.Amount, 'f', 2, 64))
			pretty.Field("Fee", strconv.FormatFloat(out.Fee, 'f', 2, 64))
			pretty.Field("Total", strconv.FormatFloat(out.Total, 'f', 2, 64))
			return nil
		},
	}
}
