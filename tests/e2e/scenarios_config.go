package main

import (
	"fmt"
	"path/filepath"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

const extraBanksTOML = `[[banks]]
id = "test-bank"
name = "Test Bank"
loginUrl = "https://bank.example/login"

[banks.selectors]
usernameField = "#user"
passwordField = "#pass"
loginButton = "#login"
transferMenu = "https://bank.example/transfers"
ibanField = "#iban"
successMessage = ".result"

[[banks]]
id = "bfa"
name = "BFA Override"
loginUrl = "https://bfa.example/login"

[banks.selectors]
usernameField = "#u"
passwordField = "#p"
loginButton = "#go"
transferMenu = "#transfers"
ibanField = "#iban"
successMessage = ".msg"
`

// ConfigBankTableScenario verifies that banks_file adds and overrides banks.
func ConfigBankTableScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "remit-config-bank-table",
		Description: "A TOML bank table named in remit.yml is merged over the built-in banks by id.",
		Tags:        []string{"remit", "config", "banks"},
		Steps: []harness.Step{
			{
				Name: "Write remit.yml and banks.toml",
				Func: func(ctx *harness.Context) error {
					projectDir := ctx.NewDir("project")
					if err := fs.WriteString(filepath.Join(projectDir, "banks.toml"), extraBanksTOML); err != nil {
						return err
					}
					remitYAML := fmt.Sprintf("version: \"1.0\"\nbanks_file: %s\n", filepath.Join(projectDir, "banks.toml"))
					if err := fs.WriteString(filepath.Join(projectDir, "remit.yml"), remitYAML); err != nil {
						return err
					}
					ctx.Set("projectDir", projectDir)
					return nil
				},
			},
			{
				Name: "List banks from the project",
				Func: func(ctx *harness.Context) error {
					var banks []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					}
					if err := remitJSON(ctx, ctx.GetString("projectDir"), &banks, "banks"); err != nil {
						return err
					}
					names := map[string]string{}
					for _, b := range banks {
						names[b.ID] = b.Name
					}
					if err := assert.Equal("Test Bank", names["test-bank"], "added bank"); err != nil {
						return err
					}
					if err := assert.Equal("BFA Override", names["bfa"], "overridden bank"); err != nil {
						return err
					}
					return assert.Equal("Banco BIC", names["bic"], "untouched built-in bank")
				},
			},
		},
	}
}

// ConfigInvalidModeScenario verifies that schema violations are reported.
func ConfigInvalidModeScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "remit-config-invalid-mode",
		Tags: []string{"remit", "config"},
		Steps: []harness.Step{
			harness.NewStep("Reject an unknown server mode", func(ctx *harness.Context) error {
				projectDir := ctx.NewDir("bad-project")
				if err := fs.WriteString(filepath.Join(projectDir, "remit.yml"), "server:\n  mode: bogus\n"); err != nil {
					return err
				}
				cmd := ctx.Command("remit", "banks").Dir(projectDir)
				result := cmd.Run()
				ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
				if err := assert.Equal(1, result.ExitCode, "invalid config should exit 1"); err != nil {
					return err
				}
				return assert.Contains(result.Stderr, "remit config schema", "Stderr should point at the schema")
			}),
		},
	}
}
