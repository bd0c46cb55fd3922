package transfer

import (
	"fmt"
	"math"
	"strings"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/mitchellh/mapstructure"
)

// Request is one transfer to perform.
type Request struct {
	Bank banks.Bank `json:"-" mapstructure:"-"`

	Username        string  `json:"username" mapstructure:"username"`
	Password        string  `json:"password" mapstructure:"password"`
	ReceiverIBAN    string  `json:"receiverIban" mapstructure:"receiverIban"`
	Amount          float64 `json:"amount" mapstructure:"amount"`
	Description     string  `json:"description,omitempty" mapstructure:"description"`
	BeneficiaryName string  `json:"beneficiaryName,omitempty" mapstructure:"beneficiaryName"`

	// OTPCode, when set, is submitted as soon as an OTP is required
	// instead of suspending. It is never persisted.
	OTPCode string `json:"otpCode,omitempty" mapstructure:"-"`
}

// Validate checks the fields every bank needs.
func (r Request) Validate() error {
	var missing []string
	if r.Bank.ID == "" {
		missing = append(missing, "bank")
	}
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.ReceiverIBAN == "" {
		missing = append(missing, "receiverIban")
	}
	if len(missing) > 0 {
		return errors.InvalidRequest(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return errors.InvalidRequest("amount must be a finite number")
	}
	if r.Amount <= 0 {
		return errors.InvalidRequest("amount must be positive")
	}
	return nil
}

// beneficiary returns the name typed into the beneficiary field.
func (r Request) beneficiary() string {
	if r.BeneficiaryName != "" {
		return r.BeneficiaryName
	}
	return banks.DefaultBeneficiaryName
}

// transferData is the transfer_data blob of a session record. The OTP code
// is left out.
func (r Request) transferData() map[string]interface{} {
	data := map[string]interface{}{
		"username":     r.Username,
		"password":     r.Password,
		"receiverIban": r.ReceiverIBAN,
		"amount":       r.Amount,
	}
	if r.Description != "" {
		data["description"] = r.Description
	}
	if r.BeneficiaryName != "" {
		data["beneficiaryName"] = r.BeneficiaryName
	}
	return data
}

// requestFromRecord rebuilds the request stored in a session record so the
// flow can be redone from the login page.
func requestFromRecord(rec *sessions.Record) (Request, error) {
	bank, err := banks.FromMap(rec.BankConfig)
	if err != nil {
		return Request{}, err
	}
	req := Request{Bank: bank}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Request{}, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(rec.TransferData); err != nil {
		return Request{}, fmt.Errorf("failed to decode transfer data: %w", err)
	}
	return req, nil
}
