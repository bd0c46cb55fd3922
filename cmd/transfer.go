package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/grovetools/remit/tui"
	"github.com/grovetools/remit/tui/otpprompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type transferFlags struct {
	bank        string
	username    string
	password    string
	iban        string
	amount      float64
	description string
	beneficiary string
	otp         string
	interactive bool
	noWait      bool
}

// NewTransferCmd returns the command that runs a transfer.
func NewTransferCmd() *cobra.Command {
	var f transferFlags
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Run a bank transfer",
		Long: `Log into the bank, fill the transfer form and confirm it.

When the bank asks for a verification code the transfer is suspended and its
session id printed. The command then keeps running until the code arrives,
either through --interactive, 'remit submit-otp' from another terminal, or
the web front end. With --no-wait it exits right away and the browser keeps
the session open for 'remit submit-otp'.

Examples:
  remit transfer --bank bfa --username alice --iban AO06000600000100037131174 --amount 250000
  remit transfer --bank bic --username alice --iban AO06... --amount 1000 --interactive
  remit transfer --bank bai --username alice --iban AO06... --amount 1000 --no-wait --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.bank, "bank", "", "Bank id (see 'remit banks')")
	cmd.Flags().StringVar(&f.username, "username", "", "Online banking username")
	cmd.Flags().StringVar(&f.password, "password", "", "Online banking password (prompted when omitted)")
	cmd.Flags().StringVar(&f.iban, "iban", "", "Receiver IBAN")
	cmd.Flags().Float64Var(&f.amount, "amount", 0, "Amount to transfer")
	cmd.Flags().StringVar(&f.description, "description", "", "Transfer description")
	cmd.Flags().StringVar(&f.beneficiary, "beneficiary", "", "Beneficiary name")
	cmd.Flags().StringVar(&f.otp, "otp", "", "Verification code to submit as soon as it is asked for")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "Prompt for the verification code")
	cmd.Flags().BoolVar(&f.noWait, "no-wait", false, "Exit once the transfer waits for a code")
	_ = cmd.MarkFlagRequired("bank")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("iban")
	_ = cmd.MarkFlagRequired("amount")
	cmd.MarkFlagsMutuallyExclusive("interactive", "no-wait")

	return cmd
}

func runTransfer(cmd *cobra.Command, f transferFlags) error {
	logger := cli.GetLogger(cmd, "transfer")
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	bank, err := e.banks.Get(f.bank)
	if err != nil {
		return err
	}
	if f.password == "" {
		if f.password, err = promptPassword(bank.Name); err != nil {
			return err
		}
	}

	req := transfer.Request{
		Bank:            bank,
		Username:        f.username,
		Password:        f.password,
		ReceiverIBAN:    f.iban,
		Amount:          f.amount,
		Description:     f.description,
		BeneficiaryName: f.beneficiary,
		OTPCode:         f.otp,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := e.engine()
	defer eng.Shutdown()

	res, err := eng.Run(ctx, req)
	if err != nil {
		return err
	}
	if !res.Pending() || f.noWait {
		return finish(cmd, res)
	}

	if f.interactive {
		tui.InitializeTUI()
		deadline := res.Timestamp.Add(e.cfg.OTP.Wait)
		prompt := otpprompt.New(ctx, res, bank.Name, bank.PrimaryColor, deadline,
			func(ctx context.Context, code string) (*transfer.Result, error) {
				return eng.SubmitCode(ctx, res.SessionID, code)
			})
		final, err := otpprompt.Run(prompt)
		if err != nil {
			return err
		}
		if final.Submitted() {
			out, err := final.Outcome()
			if err != nil {
				return err
			}
			return finish(cmd, out)
		}
	} else if err := printResult(cmd, res); err != nil {
		return err
	}

	logger.WithField("session_id", res.SessionID).Info("Waiting for the verification code")
	out, err := eng.Await(ctx, res.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. Session %s is kept; submit its code with 'remit submit-otp'.\n", res.SessionID)
		}
		return err
	}
	return finish(cmd, out)
}

// finish prints a final result and turns a failed one into a non-zero exit.
func finish(cmd *cobra.Command, res *transfer.Result) error {
	if err := printResult(cmd, res); err != nil {
		return err
	}
	if !res.Success && !res.Pending() {
		return errReported
	}
	return nil
}

func promptPassword(bankName string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.InvalidRequest("--password is required when stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", bankName)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return "", errors.InvalidRequest("empty password")
	}
	return password, nil
}
