package transfer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/sirupsen/logrus"
)

// State is a step of the transfer state machine.
type State string

const (
	StateInit            State = "INIT"
	StateLoggedIn        State = "LOGGED_IN"
	StateTransferSection State = "TRANSFER_SECTION"
	StateFormFilled      State = "FORM_FILLED"
	StateConfirmed       State = "CONFIRMED"
	StateOTPRequired     State = "OTP_REQUIRED"
	StateVerifiedSuccess State = "VERIFIED_SUCCESS"
	StateVerifiedFailed  State = "VERIFIED_FAILED"
	StateFailed          State = "FAILED"
)

var transitions = map[State][]State{
	StateInit:            {StateLoggedIn},
	StateLoggedIn:        {StateTransferSection},
	StateTransferSection: {StateFormFilled},
	StateFormFilled:      {StateConfirmed, StateOTPRequired},
	StateConfirmed:       {StateVerifiedSuccess, StateVerifiedFailed},
	StateOTPRequired:     {StateVerifiedSuccess, StateVerifiedFailed},
}

// CanTransition reports whether next may follow s. FAILED follows anything
// that is not already final.
func (s State) CanTransition(next State) bool {
	if next == StateFailed {
		return !s.Final()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateVerifiedSuccess || s == StateVerifiedFailed || s == StateFailed
}

// flow drives one bank through the steps against a single page.
type flow struct {
	page     Page
	bank     banks.Bank
	req      Request
	timeouts config.TimeoutsConfig
	logger   *logrus.Entry

	state   State
	history []State
}

func newFlow(page Page, req Request, timeouts config.TimeoutsConfig, start State, logger *logrus.Entry) *flow {
	return &flow{
		page:     page,
		bank:     req.Bank,
		req:      req,
		timeouts: timeouts,
		logger:   logger.WithField("bank", req.Bank.ID),
		state:    start,
		history:  []State{start},
	}
}

func (f *flow) advance(next State) error {
	if !f.state.CanTransition(next) {
		return fmt.Errorf("invalid transfer transition %s -> %s", f.state, next)
	}
	f.logger.WithFields(logrus.Fields{"from": f.state, "to": next}).Debug("Transfer state changed")
	f.state = next
	f.history = append(f.history, next)
	return nil
}

func (f *flow) fail() {
	if !f.state.Final() {
		_ = f.advance(StateFailed)
	}
}

// waitAny polls the selectors in priority order until one exists or timeout
// elapses. A zero timeout checks once. The bool is false when nothing matched.
func (f *flow) waitAny(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error) {
	interval := f.timeouts.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			if sel == "" {
				continue
			}
			ok, err := f.page.Exists(ctx, sel)
			if err != nil {
				if ctx.Err() != nil {
					return "", false, ctx.Err()
				}
				f.logger.WithError(err).WithField("selector", sel).Debug("Selector lookup failed")
				continue
			}
			if ok {
				return sel, true, nil
			}
		}
		if !time.Now().Before(deadline) {
			return "", false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// require waits for a mandatory element.
func (f *flow) require(ctx context.Context, selector string, timeout time.Duration) error {
	if selector == "" {
		return fmt.Errorf("bank %s has no selector for a required step", f.bank.ID)
	}
	_, ok, err := f.waitAny(ctx, []string{selector}, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ElementNotFound(selector, timeout)
	}
	return nil
}

func (f *flow) fill(ctx context.Context, selector, value string) error {
	if err := f.require(ctx, selector, f.timeouts.Field); err != nil {
		return err
	}
	return f.page.SetValue(ctx, selector, value)
}

func (f *flow) click(ctx context.Context, selector string) error {
	if err := f.require(ctx, selector, f.timeouts.Field); err != nil {
		return err
	}
	return f.page.Click(ctx, selector)
}

// clickOptional clicks selector if it shows up within timeout. Absence is not
// an error; the bool reports whether it was clicked.
func (f *flow) clickOptional(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if selector == "" {
		return false, nil
	}
	_, ok, err := f.waitAny(ctx, []string{selector}, timeout)
	if err != nil || !ok {
		return false, err
	}
	if err := f.page.Click(ctx, selector); err != nil {
		f.logger.WithError(err).WithField("selector", selector).Info("Optional element could not be clicked")
		return false, nil
	}
	return true, nil
}

// fillOptional sets a value if the field is present now.
func (f *flow) fillOptional(ctx context.Context, selector, value string) {
	if selector == "" || value == "" {
		return
	}
	_, ok, err := f.waitAny(ctx, []string{selector}, 0)
	if err != nil || !ok {
		f.logger.WithField("selector", selector).Info("Optional field not found, skipping")
		return
	}
	if err := f.page.SetValue(ctx, selector, value); err != nil {
		f.logger.WithError(err).WithField("selector", selector).Info("Optional field could not be filled")
	}
}

// login opens the login page, submits the credentials and clears any
// post-login confirmation dialogs.
func (f *flow) login(ctx context.Context) error {
	sel := f.bank.Selectors
	f.logger.WithField("url", f.bank.LoginURL).Info("Opening login page")
	if err := f.page.Navigate(ctx, f.bank.LoginURL); err != nil {
		return fmt.Errorf("login page: %w", err)
	}
	if err := f.fill(ctx, sel.UsernameField, f.req.Username); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := f.fill(ctx, sel.PasswordField, f.req.Password); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := f.click(ctx, sel.LoginButton); err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	if sel.SSDConfirmation != "" {
		if ok, err := f.clickOptional(ctx, sel.SSDConfirmation, f.timeouts.Dialog); err != nil {
			return err
		} else if ok {
			if _, err := f.clickOptional(ctx, sel.SSDAcknowledgmentBtn, f.timeouts.Dialog); err != nil {
				return err
			}
		}
	}
	f.logger.Info("Login completed")
	return f.advance(StateLoggedIn)
}

func (f *flow) openTransfers(ctx context.Context) error {
	menu := f.bank.Selectors.TransferMenu
	if f.bank.TransferMenuIsURL() {
		if err := f.page.Navigate(ctx, menu); err != nil {
			return fmt.Errorf("transfer section: %w", err)
		}
	} else if err := f.click(ctx, menu); err != nil {
		return fmt.Errorf("transfer menu not found, the login may have failed: %w", err)
	}
	f.logger.Info("Transfer section opened")
	return f.advance(StateTransferSection)
}

func (f *flow) fillForm(ctx context.Context) error {
	sel := f.bank.Selectors

	if _, err := f.clickOptional(ctx, sel.ClickIbanTabOpen, 0); err != nil {
		return err
	}
	if err := f.fill(ctx, sel.IbanField, f.req.ReceiverIBAN); err != nil {
		return fmt.Errorf("transfer form: %w", err)
	}
	if sel.AmountField != "" {
		if err := f.fill(ctx, sel.AmountField, formatAmount(f.req.Amount)); err != nil {
			return fmt.Errorf("transfer form: %w", err)
		}
	}
	if sel.SelectBox != "" && sel.SelectOption != "" {
		if ok, err := f.clickOptional(ctx, sel.SelectBox, f.timeouts.Dialog); err != nil {
			return err
		} else if ok {
			if _, err := f.clickOptional(ctx, sel.SelectOption, f.timeouts.Dialog); err != nil {
				return err
			}
		} else {
			f.logger.Info("Select box not found, skipping")
		}
	}
	f.fillOptional(ctx, sel.DescriptionField, f.req.Description)
	f.fillOptional(ctx, sel.BeneficiaryNameField, f.req.beneficiary())

	f.logger.Info("Transfer form filled")
	return f.advance(StateFormFilled)
}

// confirm submits the form and reports whether an OTP is now required.
func (f *flow) confirm(ctx context.Context) (bool, error) {
	sel := f.bank.Selectors
	if sel.ConfirmButton != "" {
		if err := f.click(ctx, sel.ConfirmButton); err != nil {
			return false, fmt.Errorf("confirm transfer: %w", err)
		}
	}

	required, err := f.detectOTP(ctx)
	if err != nil {
		return false, err
	}
	if required {
		return true, f.advance(StateOTPRequired)
	}

	if _, err := f.clickOptional(ctx, sel.ConfirmationBtn, f.timeouts.Dialog); err != nil {
		return false, err
	}
	f.logger.Info("Transfer confirmed")
	return false, f.advance(StateConfirmed)
}

// submitOTP types the code into the first OTP field found and submits it.
func (f *flow) submitOTP(ctx context.Context, code string) error {
	f.logger.WithField("otp_code", "[PROVIDED]").Info("Submitting verification code")

	field, ok, err := f.waitAny(ctx, otpFieldSelectors(f.bank), f.timeouts.OTPDetect)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ElementNotFound("OTP input field", f.timeouts.OTPDetect)
	}
	if err := f.page.SetValue(ctx, field, code); err != nil {
		return fmt.Errorf("enter verification code: %w", err)
	}

	button, ok, err := f.waitAny(ctx, validationButtonSelectors(f.bank), 0)
	if err != nil {
		return err
	}
	if ok {
		if err := f.page.Click(ctx, button); err != nil {
			return fmt.Errorf("submit verification code: %w", err)
		}
		return nil
	}
	f.logger.Warn("OTP validation button not found, pressing Enter instead")
	return f.page.PressEnter(ctx)
}

// verify handles any extra verification block and then classifies the
// result indicator. A negative or missing indicator is a VerificationFailed
// error carrying the page's own message when there is one.
func (f *flow) verify(ctx context.Context) error {
	sel := f.bank.Selectors

	if sel.AdditionalVerification != "" {
		if err := f.additionalVerification(ctx); err != nil {
			return err
		}
	}

	_, ok, err := f.waitAny(ctx, []string{sel.SuccessMessage}, f.timeouts.Verify)
	if err != nil {
		return err
	}
	if !ok {
		_ = f.advance(StateVerifiedFailed)
		return errors.VerificationFailed("result message not found within timeout").
			WithDetail("selector", sel.SuccessMessage)
	}

	class, err := f.page.Attribute(ctx, sel.SuccessMessage, "class")
	if err != nil {
		return fmt.Errorf("read result indicator: %w", err)
	}
	text, _ := f.page.Text(ctx, sel.SuccessMessage)
	text = capitalize(text)

	switch classifyIndicator(class) {
	case indicatorSuccess:
		f.logger.WithField("message", text).Info("Transfer verified")
		return f.advance(StateVerifiedSuccess)
	case indicatorFailure:
		_ = f.advance(StateVerifiedFailed)
		if text == "" {
			text = "transfer rejected by the bank"
		}
		return errors.VerificationFailed(text)
	default:
		_ = f.advance(StateVerifiedFailed)
		return errors.VerificationFailed(fmt.Sprintf("no clear success/danger class found: %s", class))
	}
}

func (f *flow) additionalVerification(ctx context.Context) error {
	sel := f.bank.Selectors
	_, ok, err := f.waitAny(ctx, []string{sel.AdditionalVerification}, f.timeouts.Dialog)
	if err != nil {
		return err
	}
	if !ok {
		f.logger.Info("No additional verification step")
		return nil
	}

	if sel.OTPValidationButton == "" {
		f.logger.Info("Additional verification block found, clicking it")
		return f.page.Click(ctx, sel.AdditionalVerification)
	}
	if _, ok, err := f.waitAny(ctx, []string{sel.OTPValidationButton}, f.timeouts.Dialog); err != nil || !ok {
		return err
	}
	n, err := f.page.FillInputsFromLabels(ctx, sel.AdditionalVerification)
	if err != nil {
		return fmt.Errorf("additional verification: %w", err)
	}
	f.logger.WithField("inputs", n).Info("Additional verification filled")
	return f.page.Click(ctx, sel.OTPValidationButton)
}

type indicator int

const (
	indicatorUnknown indicator = iota
	indicatorSuccess
	indicatorFailure
)

func classifyIndicator(class string) indicator {
	class = strings.ToLower(class)
	switch {
	case strings.Contains(class, "success"):
		return indicatorSuccess
	case strings.Contains(class, "danger"):
		return indicatorFailure
	default:
		return indicatorUnknown
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// formatAmount renders an amount without a trailing ".0" for whole numbers.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
