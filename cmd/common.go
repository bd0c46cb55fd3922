// Package cmd wires the remit subcommands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/grovetools/remit/cli"
	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/grovetools/remit/pkg/browser"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/grovetools/remit/pkg/transfer"
	"github.com/spf13/cobra"
)

// env is what most commands need: the loaded configuration, the bank table
// and the session store.
type env struct {
	cfg   *config.Config
	banks *banks.Registry
	store *sessions.Store
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create remit directories: %w", err)
	}
	registry, err := banks.Default(cfg.BanksFile)
	if err != nil {
		return nil, err
	}
	dir := cfg.Store.Dir
	if dir == "" {
		dir = paths.SessionsDir()
	}
	store, err := sessions.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, banks: registry, store: store}, nil
}

// engine returns a transfer engine driving a real browser.
func (e *env) engine() *transfer.Engine {
	driver := transfer.NewBrowserDriver(browser.NewLauncher(e.cfg.Browser), browser.NewLocator(e.cfg.Browser))
	return transfer.NewEngine(e.store, driver, e.cfg)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResult writes a transfer result as JSON or as pretty lines.
func printResult(cmd *cobra.Command, res *transfer.Result) error {
	if cli.GetOptions(cmd).JSONOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	switch {
	case res.Success:
		pretty.Success(res.Message)
		pretty.Field("Transaction", res.TransactionID)
		if res.Details != nil {
			pretty.Field("Amount", res.Details.Amount)
			pretty.Field("Fee", res.Details.Fee)
			pretty.Field("Receiver", res.Details.ReceiverIBAN)
		}
	case res.Pending():
		pretty.WarnPretty(res.Message)
		pretty.Field("Session", res.SessionID)
		if res.CurrentLocation != "" {
			pretty.Field("Page", res.CurrentLocation)
		}
		if res.OTPMessage != "" {
			pretty.InfoPretty(res.OTPMessage)
		}
	default:
		pretty.ErrorPretty(res.Message, nil)
		if res.ErrorCode != "" {
			pretty.Field("Code", res.ErrorCode)
		}
		if res.Screenshot != "" {
			pretty.Path("Screenshot", res.Screenshot)
		}
	}
	return nil
}
