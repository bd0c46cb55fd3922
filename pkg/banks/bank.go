// Package banks holds the per-bank selector tables the transfer flow drives.
package banks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DefaultBeneficiaryName is typed into beneficiaryNameField when the request names nobody.
const DefaultBeneficiaryName = "ReD-Market-On"

// Selectors maps each step of the flow to a CSS selector (or an XPath when it starts with '/').
// Optional steps are skipped when their selector is empty.
type Selectors struct {
	UsernameField string `json:"usernameField" yaml:"usernameField" toml:"usernameField" jsonschema:"required"`
	PasswordField string `json:"passwordField" yaml:"passwordField" toml:"passwordField" jsonschema:"required"`
	LoginButton   string `json:"loginButton" yaml:"loginButton" toml:"loginButton" jsonschema:"required"`
	BalanceCheck  string `json:"balanceCheck,omitempty" yaml:"balanceCheck,omitempty" toml:"balanceCheck,omitempty"`

	SSDConfirmation      string `json:"ssdConfirmation,omitempty" yaml:"ssdConfirmation,omitempty" toml:"ssdConfirmation,omitempty" jsonschema:"description=Out-of-band login confirmation dialog"`
	SSDAcknowledgmentBtn string `json:"ssdAcknowledgmentBtn,omitempty" yaml:"ssdAcknowledgmentBtn,omitempty" toml:"ssdAcknowledgmentBtn,omitempty"`

	// TransferMenu is clicked, or navigated to when it is an http(s) URL.
	TransferMenu         string `json:"transferMenu" yaml:"transferMenu" toml:"transferMenu" jsonschema:"required"`
	ClickIbanTabOpen     string `json:"clickIbanTabOpen,omitempty" yaml:"clickIbanTabOpen,omitempty" toml:"clickIbanTabOpen,omitempty"`
	IbanField            string `json:"ibanField" yaml:"ibanField" toml:"ibanField" jsonschema:"required"`
	AmountField          string `json:"amountField,omitempty" yaml:"amountField,omitempty" toml:"amountField,omitempty"`
	SelectBox            string `json:"selectBox,omitempty" yaml:"selectBox,omitempty" toml:"selectBox,omitempty"`
	SelectOption         string `json:"selectOption,omitempty" yaml:"selectOption,omitempty" toml:"selectOption,omitempty"`
	DescriptionField     string `json:"descriptionField,omitempty" yaml:"descriptionField,omitempty" toml:"descriptionField,omitempty"`
	BeneficiaryNameField string `json:"beneficiaryNameField,omitempty" yaml:"beneficiaryNameField,omitempty" toml:"beneficiaryNameField,omitempty"`

	ConfirmButton      string `json:"confirmButton,omitempty" yaml:"confirmButton,omitempty" toml:"confirmButton,omitempty"`
	ConfirmationText   string `json:"confirmationText,omitempty" yaml:"confirmationText,omitempty" toml:"confirmationText,omitempty"`
	ConfirmationBtn    string `json:"confirmationBtn,omitempty" yaml:"confirmationBtn,omitempty" toml:"confirmationBtn,omitempty"`
	ConfirmTransaction string `json:"confirmTransaction,omitempty" yaml:"confirmTransaction,omitempty" toml:"confirmTransaction,omitempty" jsonschema:"description=Clicked before looking for the OTP field"`

	OTPInputField          string `json:"otpInputField,omitempty" yaml:"otpInputField,omitempty" toml:"otpInputField,omitempty"`
	OTPValidationButton    string `json:"otpValidationButton,omitempty" yaml:"otpValidationButton,omitempty" toml:"otpValidationButton,omitempty"`
	AdditionalVerification string `json:"additionalVerification,omitempty" yaml:"additionalVerification,omitempty" toml:"additionalVerification,omitempty" jsonschema:"description=Block whose label texts are copied into its inputs before validating"`
	AdditionalInputField   string `json:"additionalInputField,omitempty" yaml:"additionalInputField,omitempty" toml:"additionalInputField,omitempty"`

	SuccessMessage string `json:"successMessage" yaml:"successMessage" toml:"successMessage" jsonschema:"required,description=Result indicator classified by its class attribute"`
}

// Bank is one entry of the bank table.
type Bank struct {
	ID           string    `json:"id" yaml:"id" toml:"id" jsonschema:"required,pattern=^[a-z0-9][a-z0-9-]*$"`
	Name         string    `json:"name" yaml:"name" toml:"name" jsonschema:"required"`
	PrimaryColor string    `json:"primaryColor,omitempty" yaml:"primaryColor,omitempty" toml:"primaryColor,omitempty"`
	LoginURL     string    `json:"loginUrl" yaml:"loginUrl" toml:"loginUrl" jsonschema:"required,format=uri"`
	Selectors    Selectors `json:"selectors" yaml:"selectors" toml:"selectors" jsonschema:"required"`
}

// TransferMenuIsURL reports whether the transfer section is reached by navigation.
func (b Bank) TransferMenuIsURL() bool {
	menu := strings.ToLower(b.Selectors.TransferMenu)
	return strings.HasPrefix(menu, "http://") || strings.HasPrefix(menu, "https://")
}

// ToMap renders the bank as the opaque bank_config blob stored in session records.
func (b Bank) ToMap() map[string]interface{} {
	data, err := json.Marshal(b)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// FromMap decodes a bank_config blob back into a Bank.
func FromMap(m map[string]interface{}) (Bank, error) {
	var b Bank
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &b,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return b, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return b, fmt.Errorf("failed to decode bank config: %w", err)
	}
	if b.ID == "" || b.LoginURL == "" {
		return b, fmt.Errorf("bank config is missing id or loginUrl")
	}
	return b, nil
}
