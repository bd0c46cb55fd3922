package cmd

import (
	stderrors "errors"

	"github.com/grovetools/remit/cli"
	"github.com/spf13/cobra"
)

// errReported marks a failure whose details were already printed; it only
// sets the exit code.
var errReported = stderrors.New("failure already reported")

// NewRootCmd builds the remit command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := cli.NewStandardCommand(
		"remit",
		"Bank transfer automation with resumable OTP sessions",
	)

	rootCmd.AddCommand(NewTransferCmd())
	rootCmd.AddCommand(NewSubmitOTPCmd())
	rootCmd.AddCommand(NewSessionsCmd())
	rootCmd.AddCommand(NewBanksCmd())
	rootCmd.AddCommand(NewFeeCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewLogsCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("remit"))

	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	if !stderrors.Is(err, errReported) {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
	}
	return 1
}
