package main

import (
	"fmt"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/command"
	"github.com/grovetools/tend/pkg/harness"
)

// VersionScenario tests the 'version' command.
func VersionScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "remit-basic-version",
		Tags: []string{"remit", "basic"},
		Steps: []harness.Step{
			harness.NewStep("Run 'remit version'", func(ctx *harness.Context) error {
				remitBinary, err := findRemitBinary()
				if err != nil {
					return err
				}

				cmd := command.New(remitBinary, "version")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)

				if err := assert.Equal(0, result.ExitCode, "remit version should exit successfully"); err != nil {
					return err
				}
				if err := assert.Contains(result.Stdout, "Version:", "Output should contain Version"); err != nil {
					return err
				}
				return assert.Contains(result.Stdout, "Commit:", "Output should contain Commit")
			}),
		},
	}
}

// BanksScenario checks the built-in bank table.
func BanksScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "remit-basic-banks",
		Description: "Lists the built-in banks and shows one selector table.",
		Tags:        []string{"remit", "basic", "banks"},
		Steps: []harness.Step{
			harness.NewStep("List banks", func(ctx *harness.Context) error {
				var banks []map[string]interface{}
				if err := remitJSON(ctx, "", &banks, "banks"); err != nil {
					return err
				}
				ids := map[string]bool{}
				for _, b := range banks {
					id, _ := b["id"].(string)
					ids[id] = true
				}
				for _, want := range []string{"banco-atlantico", "bfa", "bic", "bai"} {
					if !ids[want] {
						return fmt.Errorf("bank %q missing from 'remit banks'", want)
					}
				}
				return nil
			}),
			harness.NewStep("Show one bank", func(ctx *harness.Context) error {
				var bank struct {
					Name      string            `json:"name"`
					Selectors map[string]string `json:"selectors"`
				}
				if err := remitJSON(ctx, "", &bank, "banks", "show", "bic"); err != nil {
					return err
				}
				if err := assert.Equal("Banco BIC", bank.Name, "bank name"); err != nil {
					return err
				}
				if bank.Selectors["ibanField"] == "" {
					return fmt.Errorf("bic has no ibanField selector")
				}
				return nil
			}),
			harness.NewStep("Unknown bank fails", func(ctx *harness.Context) error {
				cmd := ctx.Command("remit", "banks", "show", "nope")
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(1, result.ExitCode, "unknown bank should exit 1"); err != nil {
					return err
				}
				return assert.Contains(result.Stderr, "remit banks", "Stderr should point at 'remit banks'")
			}),
		},
	}
}

// FeeScenario checks the fee clamp at both ends and in between.
func FeeScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "remit-basic-fee",
		Tags: []string{"remit", "basic"},
		Steps: []harness.Step{
			harness.NewStep("Compute fees", func(ctx *harness.Context) error {
				cases := []struct {
					amount string
					fee    float64
				}{
					{"1000", 500},
					{"250000", 1250},
					{"5000000", 5000},
				}
				for _, tc := range cases {
					var out struct {
						Fee float64 `json:"fee"`
					}
					if err := remitJSON(ctx, "", &out, "fee", tc.amount); err != nil {
						return err
					}
					if err := assert.Equal(tc.fee, out.Fee, fmt.Sprintf("fee of %s", tc.amount)); err != nil {
						return err
					}
				}
				return nil
			}),
		},
	}
}
