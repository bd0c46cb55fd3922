package cmd

import (
	"github.com/grovetools/remit/cli"
	"github.com/spf13/cobra"
)

// NewSubmitOTPCmd returns the command that delivers a verification code to a
// suspended transfer, from any process.
func NewSubmitOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-otp <session-id> <code>",
		Short: "Submit the verification code of a suspended transfer",
		Long: `Submit the verification code of a transfer waiting on an OTP.

The browser that holds the session is found again and the code typed into
the bank page. When that browser is gone the transfer is redone from the
login page with the stored transfer data.

Examples:
  remit submit-otp SES1718000000AB12CD34 123456`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd, "submit-otp")
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			eng := e.engine()
			defer eng.Shutdown()

			logger.WithField("session_id", args[0]).Debug("Submitting verification code")
			res, err := eng.SubmitCode(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return finish(cmd, res)
		},
	}
}
